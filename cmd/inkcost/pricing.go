package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/book-expert/ink-coverage-service/internal/pricing"
	"github.com/book-expert/ink-coverage-service/internal/pricingstore"
)

// ErrTenantRequired is returned when a pricing command is run without --tenant.
var ErrTenantRequired = errors.New("tenant is required")

// tenantPricing is the part of pricingstore.Store the pricing commands use.
type tenantPricing interface {
	Load(ctx context.Context, tenant string) (pricing.CartridgePricing, error)
	Save(ctx context.Context, tenant string, p pricing.CartridgePricing) (uint64, error)
}

var pricingFlags struct {
	tenant  string
	file    string
	natsURL string
	bucket  string
}

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Manage the cartridge pricing saved for a tenant",
}

var pricingSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save the [pricing] table of project.toml, or of --file, for a tenant",
	Args:  cobra.NoArgs,
	RunE:  runPricingSet,
}

var pricingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the pricing the service applies to a tenant",
	Args:  cobra.NoArgs,
	RunE:  runPricingShow,
}

func init() {
	pricingCmd.PersistentFlags().StringVarP(&pricingFlags.tenant, "tenant", "t", "", "Tenant ID")
	pricingCmd.PersistentFlags().StringVar(&pricingFlags.natsURL, "nats-url", "", "NATS server URL (default [nats].url, then "+nats.DefaultURL+")")
	pricingCmd.PersistentFlags().StringVar(&pricingFlags.bucket, "bucket", "", "Key-value bucket (default [nats].pricing_bucket, then "+pricingstore.DefaultBucket+")")
	pricingSetCmd.Flags().StringVar(&pricingFlags.file, "file", "", "TOML file with a [pricing] table")
	pricingCmd.AddCommand(pricingSetCmd, pricingShowCmd)
	rootCmd.AddCommand(pricingCmd)
}

func runPricingSet(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadProjectConfig()
	if err != nil {
		return err
	}

	cartridges := cfg.Pricing

	if pricingFlags.file != "" {
		fromFile, loadErr := loadConfig(pricingFlags.file)
		if loadErr != nil {
			return loadErr
		}

		cartridges = fromFile.Pricing
	}

	return withPricingStore(cmd.Context(), &cfg, func(store tenantPricing) error {
		return savePricing(cmd.Context(), cmd.OutOrStdout(), store, pricingFlags.tenant, cartridges)
	})
}

func runPricingShow(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadProjectConfig()
	if err != nil {
		return err
	}

	return withPricingStore(cmd.Context(), &cfg, func(store tenantPricing) error {
		return showPricing(cmd.Context(), cmd.OutOrStdout(), store, pricingFlags.tenant)
	})
}

// withPricingStore connects to NATS, opens the pricing bucket and hands it to use.
// The project pricing is the fallback for tenants that saved nothing.
func withPricingStore(ctx context.Context, cfg *config, use func(tenantPricing) error) error {
	url := firstNonEmpty(pricingFlags.natsURL, cfg.NATS.URL, nats.DefaultURL)

	natsConnection, connErr := nats.Connect(url)
	if connErr != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", url, connErr)
	}
	defer natsConnection.Close()

	jetStream, jsErr := jetstream.New(natsConnection)
	if jsErr != nil {
		return fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	bucket := firstNonEmpty(pricingFlags.bucket, cfg.NATS.PricingBucket)

	store, openErr := pricingstore.Open(ctx, jetStream, bucket, cfg.Pricing)
	if openErr != nil {
		return openErr
	}

	return use(store)
}

// savePricing stores cartridges for tenant and reports the new revision on out.
func savePricing(
	ctx context.Context,
	out io.Writer,
	store tenantPricing,
	tenant string,
	cartridges pricing.CartridgePricing,
) error {
	if tenant == "" {
		return ErrTenantRequired
	}

	revision, saveErr := store.Save(ctx, tenant, cartridges)
	if saveErr != nil {
		return fmt.Errorf("could not save pricing: %w", saveErr)
	}

	_, printErr := fmt.Fprintf(out, "Saved %s pricing for %s (revision %d)\n", cartridges.Mode, tenant, revision)

	return printErr
}

// showPricing writes the tenant's effective pricing to out as JSON.
func showPricing(ctx context.Context, out io.Writer, store tenantPricing, tenant string) error {
	if tenant == "" {
		return ErrTenantRequired
	}

	cartridges, loadErr := store.Load(ctx, tenant)
	if loadErr != nil {
		return fmt.Errorf("could not load pricing: %w", loadErr)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(cartridges)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
