package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	pb "market-feed/src/grpc_control"
	"market-feed/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const usage = `usage: feedctl [-addr host:port] <command> [args]

commands:
  status                       show connection state and active streams
  reconnect                    reset an exhausted connection and dial again
  symbols                      list the symbol catalogue
  add EXCHANGE:TICKER[,...]    add symbols (use -type and -precision)
`

func main() {
	addr := flag.String("addr", "127.0.0.1:50051", "control server address")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	symbolType := flag.String("type", "", "symbol type for add")
	precision := flag.Int("precision", 2, "price precision for add")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Printf("Error connecting to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	client := pb.NewFeedControlClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var out interface{}
	switch flag.Arg(0) {
	case "status":
		out, err = client.GetStatus(ctx, &pb.Empty{})
	case "reconnect":
		out, err = client.Reconnect(ctx, &pb.Empty{})
	case "symbols":
		out, err = client.ListSymbols(ctx, &pb.Empty{})
	case "add":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		req := &pb.AddSymbolsRequest{Symbols: parseSymbols(flag.Arg(1), *symbolType, *precision)}
		out, err = client.AddSymbols(ctx, req)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

// -----------------------------------------------------------------------------

// parseSymbols reads a comma separated list of EXCHANGE:TICKER or TICKER.
func parseSymbols(arg, symbolType string, precision int) []models.MSymbol {
	var symbols []models.MSymbol
	for _, name := range strings.Split(arg, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		sym := models.MSymbol{Ticker: name, Type: symbolType, PricePrecision: precision}
		if exchange, ticker, ok := strings.Cut(name, ":"); ok {
			sym.Exchange, sym.Ticker = exchange, ticker
		}
		symbols = append(symbols, sym)
	}
	return symbols
}
