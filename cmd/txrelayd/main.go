// Package main provides the entry point for the transaction relay daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahwlsqja/txrelay/node"
	"github.com/ahwlsqja/txrelay/rpc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "txrelayd",
		Short:         "Transaction relay node",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newStartCmd(), newSubmitCmd(), newStatusCmd())
	return root
}

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the relay node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := node.LoadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return runNode(cfg)
		},
	}

	def := node.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Config file (toml, yaml or json)")
	flags.String("node-id", def.NodeID, "Unique node identifier")
	flags.String("listen-addr", def.ListenAddr, "P2P listen address")
	flags.StringSlice("peers", nil, "Peers to dial (id@host:port)")
	flags.String("network", def.Network, "mainnet, testnet3, regtest or simnet")
	flags.String("rpc-addr", def.RPCAddr, "Local RPC address (empty disables)")
	flags.Bool("metrics-enabled", def.MetricsEnabled, "Serve Prometheus metrics")
	flags.String("metrics-addr", def.MetricsAddr, "Prometheus metrics address")
	flags.String("log-level", def.LogLevel, "debug, info, error or none")
	flags.String("data-dir", def.DataDir, "Data directory")
	flags.String("store-backend", def.StoreBackend, "memory or leveldb")
	flags.Int("back-pressure", def.BackPressure, "Relay inbox capacity")
	flags.Int64("rng-seed", def.RNGSeed, "Peer selection seed (0 = time based)")
	return cmd
}

func runNode(cfg *node.Config) error {
	logger, err := node.NewLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}

	n, err := node.NewNode(cfg, logger)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
		if err := n.Stop(); err != nil {
			return err
		}
		logger.Info("Shutdown complete")
		return nil
	case err := <-n.Fatal():
		// 릴레이가 저장소 오류로 멈춤. 재시작은 상위 감독자가 결정
		logger.Error("Relay failed", "err", err)
		n.Stop()
		return err
	}
}

func newSubmitCmd() *cobra.Command {
	var rpcAddr, note string

	cmd := &cobra.Command{
		Use:   "submit <raw-tx-hex>",
		Short: "Submit a raw transaction to a running node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rpc.NewClient(rpcAddr)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			txid, err := client.SubmitTx(ctx, args[0], note)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), txid)
			return nil
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", node.DefaultConfig().RPCAddr, "Node RPC address")
	cmd.Flags().StringVar(&note, "note", "", "Note stored with the transaction")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var rpcAddr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := rpc.NewClient(rpcAddr)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			status, err := client.GetStatus(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", node.DefaultConfig().RPCAddr, "Node RPC address")
	return cmd
}
