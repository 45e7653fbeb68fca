// Command detection-watch connects to a running irtrack -grpc server and
// prints every streamed detection.
//
// Usage:
//
//	go run ./cmd/tools/detection-watch [-addr localhost:50061] [-n 0]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/irtrack/internal/optical/visualiser"
)

func main() {
	addr := flag.String("addr", "localhost:50061", "irtrack gRPC address")
	n := flag.Int("n", 0, "Exit after this many frames (0 = run until interrupted)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer conn.Close()

	if err := watch(ctx, conn, *n, os.Stdout); err != nil && ctx.Err() == nil {
		log.Fatalf("detection-watch: %v", err)
	}
}

func watch(ctx context.Context, conn grpc.ClientConnInterface, n int, out io.Writer) error {
	stream, err := visualiser.StreamDetections(ctx, conn)
	if err != nil {
		return err
	}
	for seen := 0; n <= 0 || seen < n; seen++ {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fr, err := visualiser.DecodeFrame(msg)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("frame=%d phase=%s valid=%v center=(%.4f, %.4f, %.4f)",
			fr.Index, fr.Phase, fr.Valid, fr.Center.X, fr.Center.Y, fr.Center.Z)
		if fr.RecoveredSlot != "" {
			line += " recovered=" + fr.RecoveredSlot
		}
		if fr.SessionID != "" {
			line += " session=" + fr.SessionID
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
