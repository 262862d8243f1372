// Command ordertrack signs in to the food ordering API and prints order status
// changes as they are observed.
//
//	ordertrack -email me@example.com -password secret -order <id>
//	ordertrack -email me@example.com -password secret -watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"food-ordering-api/client"
	"food-ordering-api/logging"
	"food-ordering-api/tracker"
)

func main() {
	var (
		baseURL  = flag.String("api", envOr("API_URL", "http://localhost:5000"), "API base URL")
		email    = flag.String("email", os.Getenv("ORDERTRACK_EMAIL"), "account email")
		password = flag.String("password", os.Getenv("ORDERTRACK_PASSWORD"), "account password")
		orderID  = flag.String("order", "", "track a single order until it is delivered or cancelled")
		watch    = flag.Bool("watch", false, "watch all active orders")
		interval = flag.Duration("interval", 0, "poll interval (default 30s for -order, 120s for -watch)")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log := logging.New(os.Stderr, logging.Config{Level: *logLevel})

	if *email == "" || *password == "" || (*orderID == "") == !*watch {
		fmt.Fprintln(os.Stderr, "ordertrack: need -email, -password and exactly one of -order or -watch")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*baseURL)
	user, err := c.Login(ctx, *email, *password)
	if err != nil {
		log.Error("login failed", "error", err)
		os.Exit(1)
	}
	log.Info("signed in", "user", user.Email, "role", user.Role)

	show := func(ch tracker.Change) {
		from := string(ch.From)
		if from == "" {
			from = "-"
		}
		fmt.Printf("%s  order %s  %s -> %s  total %s\n",
			ch.At.Format(time.TimeOnly), ch.OrderID, from, ch.To, ch.Order.Pricing.Total.StringFixed(2))
	}

	if *watch {
		err = tracker.NewActiveOrdersWatcher(c, *interval, log).Run(ctx, show)
	} else {
		err = tracker.NewOrderTracker(c, *orderID, *interval, log).Run(ctx, show)
	}
	if !tracker.IsDone(err) && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("tracking stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
