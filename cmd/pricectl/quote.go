package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/promo-pricing/internal/common"
	"github.com/noah-isme/promo-pricing/internal/config"
	"github.com/noah-isme/promo-pricing/internal/pricing"
	"github.com/noah-isme/promo-pricing/internal/quote"
)

type quoteOptions struct {
	itemsPath  string
	region     string
	membership string
	coupons    []string
	asJSON     bool
	server     string
	timeout    time.Duration
}

func newQuoteCmd() *cobra.Command {
	opts := &quoteOptions{}
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a list of items",
		Example: `  pricectl quote --items cart.json --region CA --membership gold --coupon PCT10
  pricectl quote --items cart.yaml --region NY --coupon BOGO1 --json
  pricectl quote --items cart.json --region TX --server http://localhost:8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuote(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.itemsPath, "items", "", "JSON or YAML file with a list of items")
	f.StringVar(&opts.region, "region", "", "destination region code")
	f.StringVar(&opts.membership, "membership", "none", "membership tier: none, silver or gold")
	f.StringArrayVar(&opts.coupons, "coupon", nil, "coupon code, repeatable and applied in order")
	f.BoolVar(&opts.asJSON, "json", false, "print the quote as JSON")
	f.StringVar(&opts.server, "server", "", "price through a running API at this base URL")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout when --server is set")
	_ = cmd.MarkFlagRequired("items")
	return cmd
}

func runQuote(cmd *cobra.Command, opts *quoteOptions) error {
	items, err := readItems(opts.itemsPath)
	if err != nil {
		return err
	}
	req := quote.Request{
		Items:       items,
		Region:      opts.region,
		Membership:  opts.membership,
		CouponCodes: opts.coupons,
	}

	var res quote.Result
	if opts.server != "" {
		res, err = remoteQuote(cmd.Context(), opts.server, opts.timeout, req)
	} else {
		res, err = localQuote(req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printResult(out, res)
}

func localQuote(req quote.Request) (quote.Result, error) {
	cfg, err := config.Load()
	if err != nil {
		return quote.Result{}, err
	}
	engine, err := pricing.NewEngine(cfg.Pricing)
	if err != nil {
		return quote.Result{}, err
	}
	b, err := engine.QuoteFromMaps(req.Items, req.Region, req.Membership, req.CouponCodes)
	if err != nil {
		return quote.Result{}, err
	}
	res := quote.NewResult(b, cfg.CurrencyCode, engine.Fingerprint())
	res.QuotedAt = time.Now().UTC()
	return res, nil
}

func remoteQuote(ctx context.Context, server string, timeout time.Duration, req quote.Request) (quote.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return quote.Result{}, err
	}
	url := strings.TrimRight(server, "/") + "/api/v1/quotes"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return quote.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(httpReq)
	if err != nil {
		return quote.Result{}, fmt.Errorf("request quote: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return quote.Result{}, fmt.Errorf("read quote response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error common.ErrorBody `json:"error"`
		}
		if json.Unmarshal(payload, &errResp) == nil && errResp.Error.Message != "" {
			return quote.Result{}, fmt.Errorf("%s: %s", errResp.Error.Code, errResp.Error.Message)
		}
		return quote.Result{}, fmt.Errorf("quote request failed with status %d", resp.StatusCode)
	}
	var ok struct {
		Data quote.Result `json:"data"`
	}
	if err := json.Unmarshal(payload, &ok); err != nil {
		return quote.Result{}, fmt.Errorf("decode quote response: %w", err)
	}
	if ok.Data.Total == "" {
		return quote.Result{}, errors.New("quote response missing total")
	}
	return ok.Data, nil
}

func printResult(w io.Writer, res quote.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	line := func(label, value string) {
		fmt.Fprintf(tw, "%s\t%s\t\n", label, value)
	}
	line("Subtotal", res.Subtotal)
	for _, d := range res.Discounts {
		line("  "+d.Type, "-"+d.Amount)
	}
	line("Discounted subtotal", res.DiscountedSubtotal)
	line("Shipping", res.Shipping)
	line("Tax", res.Tax)
	line("Total "+res.Currency, res.Total)
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(res.ReasonFlags) > 0 {
		_, err := fmt.Fprintf(w, "Flags: %s\n", strings.Join(res.ReasonFlags, ", "))
		return err
	}
	return nil
}
