// Command demo sends one message over every channel kind through a
// simulated provider and prints how each retry policy played out.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"notifier/internal/adapter/simulated"
	"notifier/internal/channel"
	"notifier/internal/dispatcher"
	"notifier/internal/platform/logger"
)

func main() {
	var (
		unit     = flag.Duration("unit", time.Second, "retry delay time unit")
		rate     = flag.Float64("success", 0.5, "simulated send success rate")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "simulated outcome seed")
		attempts = flag.Int("attempts", dispatcher.DefaultMaxAttempts, "max retries per message")
		text     = flag.String("text", "Your order has shipped!", "message text")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.New(logger.Options{Env: "dev", ConsoleLevel: "debug", App: "notifier-demo"})
	defer func() { _ = logger.Close(log) }()

	d := dispatcher.New(dispatcher.WithLogger(log), dispatcher.WithDefaultMaxAttempts(*attempts))

	recipients := map[channel.Kind]string{
		channel.KindEmail: "customer@example.com",
		channel.KindSMS:   "+15550100",
		channel.KindPush:  "device-42",
	}
	for i, kind := range channel.Kinds() {
		t := simulated.New(kind.String(), *rate, *seed+uint64(i), log)
		ch, err := channel.New(kind, t, channel.WithTimeUnit(*unit))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		fmt.Println(strings.Repeat("=", 50))
		fmt.Printf("Sending via %s using %s backoff\n", kind, ch.Policy().Strategy())
		fmt.Println(strings.Repeat("=", 50))

		rep, err := d.SendWithRetry(ctx, ch, channel.Message{Recipient: recipients[kind], Text: *text}, *attempts)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %s after %d attempt(s), waited %s\n\n", kind, rep.Outcome, rep.Attempts, rep.Waited)
	}
}
