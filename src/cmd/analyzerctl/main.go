// Package main provides analyzerctl, a thin command-line wrapper around the
// analyzer-core pipeline: index/delete logs and run analyze/suggest against
// a running index store, the same operations the surrounding platform
// normally drives over the message bus. Grounded on the mode-detecting
// cobra root command in destill-cli/main.go, trimmed to this service's
// five operations (index, delete, analyze, search, suggest).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reportflow/analyzer-core/src/broker"
	"github.com/reportflow/analyzer-core/src/config"
	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/indexgw"
	"github.com/reportflow/analyzer-core/src/logger"
	"github.com/reportflow/analyzer-core/src/namespace"
	"github.com/reportflow/analyzer-core/src/pipeline"
	"github.com/reportflow/analyzer-core/src/ranker"
	"github.com/reportflow/analyzer-core/src/retrain"
	"github.com/reportflow/analyzer-core/src/store"
)

var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "analyzerctl",
	Short: "analyzerctl drives the log-analyzer pipeline against an index store",
	Long: `analyzerctl indexes logs, deletes logs, and runs the analyze/suggest
operations against the Elasticsearch-compatible index store configured by
ES_HOST. Requests are read as JSON from stdin; results are written as JSON
to stdout.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		appConfig = cfg
		return nil
	},
}

func log() logger.Logger { return logger.NewConsoleLogger() }

func newGateway() *indexgw.Gateway {
	return indexgw.New(*appConfig, log())
}

func newNamespaceTracker(ctx context.Context) (*namespace.Tracker, error) {
	st, err := newStore()
	if err != nil {
		return nil, err
	}
	return namespace.New(st), nil
}

func newRetrainRegistry() (*retrain.Registry, error) {
	st, err := newStore()
	if err != nil {
		return nil, err
	}
	br, err := newBroker()
	if err != nil {
		return nil, err
	}
	return retrain.New(st, br, retrain.DefaultThreshold), nil
}

func newStore() (store.Store, error) {
	if appConfig.PostgresDSN == "" {
		return store.NewInMemoryStore(), nil
	}
	return store.NewPostgresStore(appConfig.PostgresDSN)
}

func newBroker() (broker.Broker, error) {
	if len(appConfig.RedpandaBrokers) == 0 {
		return broker.NewInMemoryBroker(), nil
	}
	return broker.NewRedpandaBroker(appConfig.RedpandaBrokers)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index a batch of launches (JSON array of contracts.Launch) from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		var launches []contracts.Launch
		if err := json.NewDecoder(os.Stdin).Decode(&launches); err != nil {
			return fmt.Errorf("decode launches: %w", err)
		}

		ctx := context.Background()
		ns, err := newNamespaceTracker(ctx)
		if err != nil {
			return err
		}
		retrainer, err := newRetrainRegistry()
		if err != nil {
			return err
		}

		svc := pipeline.NewIndexingService(newGateway(), ns, retrainer, log())
		resp, err := svc.IndexLogs(ctx, launches)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(resp)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [project]",
	Short: "Delete a batch of log ids (JSON array of int64) from stdin for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ids []int64
		if err := json.NewDecoder(os.Stdin).Decode(&ids); err != nil {
			return fmt.Errorf("decode ids: %w", err)
		}

		svc := pipeline.NewIndexingService(newGateway(), nil, nil, log())
		resp, err := svc.DeleteLogs(context.Background(), args[0], ids)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(resp)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a launch (JSON contracts.Launch) from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		var launch contracts.Launch
		if err := json.NewDecoder(os.Stdin).Decode(&launch); err != nil {
			return fmt.Errorf("decode launch: %w", err)
		}

		p := pipeline.NewAnalyzerPipeline(newGateway(), appConfig.Search, log())
		results, err := p.Analyze(context.Background(), launch)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(results)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for historical logs similar to a set of messages (JSON contracts.SearchLogsRequest) from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req contracts.SearchLogsRequest
		if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
			return fmt.Errorf("decode search-logs request: %w", err)
		}

		p := pipeline.NewSearchLogsPipeline(newGateway(), appConfig.Search, log())
		results, err := p.SearchLogs(context.Background(), req)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(results)
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest relevant items for a test item (JSON contracts.SuggestAnalyzerConfig) from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		var info contracts.SuggestAnalyzerConfig
		if err := json.NewDecoder(os.Stdin).Decode(&info); err != nil {
			return fmt.Errorf("decode suggest request: %w", err)
		}

		numItems, err := cmd.Flags().GetInt("num-items")
		if err != nil {
			return err
		}

		r, err := ranker.LoadGBDT(appConfig.Search.BoostModelFolder)
		if err != nil {
			log().Error("Couldn't load ranker model, suggest will return zero results: %v", err)
			r = nil
		}

		ctx := context.Background()
		ns, err := newNamespaceTracker(ctx)
		if err != nil {
			return err
		}
		br, err := newBroker()
		if err != nil {
			return err
		}

		p := pipeline.NewSuggestPipeline(newGateway(), appConfig.Search, r, nil, nil, ns, br, appConfig.ExchangeName, appConfig.AppVersion, log())
		results, err := p.Suggest(ctx, info, numItems)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(results)
	},
}

func init() {
	suggestCmd.Flags().Int("num-items", 10, "maximum number of suggested items to return")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(suggestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
