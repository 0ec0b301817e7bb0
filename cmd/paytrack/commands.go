package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/angelmondragon/paytrack/internal/poller"
	"github.com/angelmondragon/paytrack/internal/tracking"
	"github.com/angelmondragon/paytrack/pkg/enums"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/shopspring/decimal"
)

const usage = `usage: paytrack <command> [flags]

commands:
  checkout -product NAME -price AMOUNT   create a payment link
  resume                                 print the stored payment link if still valid
  clear                                  forget the stored payment link
  status   -order ID                     poll the order until it settles
  status   -reference REF -result-code CODE [-amount N]
                                         show the redirect result without polling
  simulate -order ID -code 00|02         fake a gateway callback and follow the order
`

var errUsage = errors.New("usage")

type app struct {
	svc   tracking.Service
	scope string
	out   io.Writer
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "checkout":
		return a.checkout(ctx, args[1:])
	case "resume":
		return a.resume(ctx)
	case "clear":
		return a.svc.ClearPaymentLink(ctx, a.scope)
	case "status":
		return a.status(ctx, args[1:])
	case "simulate":
		return a.simulate(ctx, args[1:])
	}
	return errUsage
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *app) checkout(ctx context.Context, args []string) error {
	fs := newFlagSet("checkout")
	product := fs.String("product", "", "product name")
	price := fs.String("price", "", "price in whole currency units")
	if err := fs.Parse(args); err != nil || strings.TrimSpace(*product) == "" || strings.TrimSpace(*price) == "" {
		return errUsage
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(*price))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price must be a number")
	}

	result, err := a.svc.Checkout(ctx, a.scope, tracking.CheckoutRequest{ProductName: *product, Price: amount})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Order %s created.\n", result.OrderID)
	fmt.Fprintf(a.out, "Pay here: %s\n", result.PaymentURL)
	fmt.Fprintf(a.out, "This link is valid for %d minutes.\n", result.MinutesRemaining)
	return nil
}

func (a *app) resume(ctx context.Context) error {
	result, err := a.svc.ResumePayment(ctx, a.scope)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Continue payment: %s\n", result.PaymentURL)
	fmt.Fprintf(a.out, "Expires in %s.\n", formatRemaining(result.RemainingSeconds))
	return nil
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := newFlagSet("status")
	order := fs.String("order", "", "merchant order id")
	reference := fs.String("reference", "", "gateway reference")
	resultCode := fs.String("result-code", "", "gateway result code")
	amount := fs.String("amount", "", "paid amount")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	query := tracking.StatusQuery{
		MerchantOrderID: *order,
		Reference:       *reference,
		ResultCode:      *resultCode,
		Amount:          *amount,
	}
	if strings.TrimSpace(query.MerchantOrderID) == "" && strings.TrimSpace(query.Reference) == "" && strings.TrimSpace(query.ResultCode) == "" {
		return errUsage
	}

	views, unsubscribe, err := a.svc.Subscribe(ctx, a.scope)
	if err != nil {
		return err
	}
	defer unsubscribe()

	page, err := a.svc.StatusPage(ctx, a.scope, query)
	if err != nil {
		return err
	}
	if page.Mode == tracking.StatusModeLegacy {
		renderLegacy(a.out, page.Legacy)
		return nil
	}
	return a.follow(ctx, views)
}

func (a *app) simulate(ctx context.Context, args []string) error {
	fs := newFlagSet("simulate")
	order := fs.String("order", "", "merchant order id")
	code := fs.String("code", "", "result code: 00 success, 02 failure")
	if err := fs.Parse(args); err != nil || strings.TrimSpace(*order) == "" || strings.TrimSpace(*code) == "" {
		return errUsage
	}

	views, unsubscribe, err := a.svc.Subscribe(ctx, a.scope)
	if err != nil {
		return err
	}
	defer unsubscribe()

	if err := a.svc.Simulate(ctx, a.scope, *order, enums.ResultCode(strings.TrimSpace(*code))); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Callback sent, checking order...")
	return a.follow(ctx, views)
}

// follow prints views until the session that starts after subscribing ends.
// Interrupting stops the poll.
func (a *app) follow(ctx context.Context, views <-chan poller.View) error {
	started := false
	for {
		select {
		case <-ctx.Done():
			if _, err := a.svc.StopPolling(context.WithoutCancel(ctx), a.scope); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Stopped.")
			return nil
		case view, open := <-views:
			if !open {
				return nil
			}
			if view.State == enums.PollStatePolling {
				started = true
			}
			if !started {
				continue
			}
			renderView(a.out, view)
			if view.State.IsTerminal() {
				return nil
			}
		}
	}
}

// describe turns a typed error into a single line, with the recovery hint when one exists.
func describe(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err.Error()
	}
	msg := typed.Message()
	if typed.Code() == pkgerrors.CodeLinkExpired {
		if details, ok := typed.Details().(map[string]any); ok {
			if redirect, _ := details["redirect"].(string); redirect != "" {
				msg += "; start again from " + redirect
			}
		}
	}
	return msg
}
