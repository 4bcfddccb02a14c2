package main

import (
	"fmt"
	"strconv"
	"strings"

	"devdash/internal/application"
	"devdash/internal/units"

	"github.com/spf13/cobra"
)

var (
	deployArgs []string

	callABIFile string
	callArgs    []string
	callValue   string

	sendUnit string

	scanWindow uint64

	impersonateStop bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy <file.sol>",
	Short: "Compile and deploy the first contract of a Solidity file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readFile(args[0])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		session, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		playground, err := application.NewPlayground(newCompiler(), session, store)
		if err != nil {
			return err
		}
		compiled, err := playground.Compile(cmd.Context(), string(source))
		if err != nil {
			return err
		}
		deployment, err := playground.Deploy(cmd.Context(), compiled.Contract, deployArgs)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), deployment)
	},
}

var callCmd = &cobra.Command{
	Use:   "call <address> <method>",
	Short: "Call a contract method; state changing methods are sent as transactions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		abiJSON, err := readFile(callABIFile)
		if err != nil {
			return err
		}
		session, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		playground, err := application.NewPlayground(newCompiler(), session, nil)
		if err != nil {
			return err
		}
		result, err := playground.Call(cmd.Context(), application.CallRequest{
			Address: args[0],
			ABI:     abiJSON,
			Method:  args[1],
			Args:    callArgs,
			Value:   callValue,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <to> <amount>",
	Short: "Send a value transfer from the signing key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		decimals, err := units.Decimals(units.Unit(sendUnit))
		if err != nil {
			return err
		}
		wei, err := units.ParseUnits(args[1], decimals)
		if err != nil {
			return err
		}
		session, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		hash, err := session.SendValueTransfer(cmd.Context(), args[0], wei)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Scan recent blocks for deployed contracts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		session, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()
		client, err := session.Client()
		if err != nil {
			return err
		}

		window := scanWindow
		if window == 0 {
			window = cfg.ScanWindow
		}
		scanner := application.NewScanner(store, nil, application.ScannerConfig{Window: window, BatchSize: cfg.ScanBatchSize})
		contracts, err := scanner.Scan(cmd.Context(), client)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range contracts {
			fmt.Fprintf(out, "%s  %-20s block=%d size=%dB verified=%t deployer=%s\n",
				c.Address, c.Name, c.BlockNumber, c.SizeBytes, c.Verified, c.Deployer)
		}
		if len(contracts) == 0 {
			fmt.Fprintln(out, "no contracts found")
		}
		return nil
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Control a development node (anvil, hardhat, ganache)",
}

// nodeAction wraps a node tool call in a connected session.
func nodeAction(fn func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		session, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()
		result, err := fn(cmd, application.NewNodeTools(session), args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	}
}

var nodeMineCmd = &cobra.Command{
	Use:   "mine [blocks]",
	Short: "Mine blocks",
	Args:  cobra.MaximumNArgs(1),
	RunE: nodeAction(func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error) {
		blocks := uint64(1)
		if len(args) == 1 {
			n, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || n == 0 {
				return nil, fmt.Errorf("invalid block count %q", args[0])
			}
			blocks = n
		}
		return map[string]uint64{"mined": blocks}, tools.Mine(cmd.Context(), blocks)
	}),
}

var nodeIncreaseTimeCmd = &cobra.Command{
	Use:   "increase-time <seconds>",
	Short: "Advance the node clock",
	Args:  cobra.ExactArgs(1),
	RunE: nodeAction(func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error) {
		seconds, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seconds %q", args[0])
		}
		return map[string]uint64{"increased_by": seconds}, tools.IncreaseTime(cmd.Context(), seconds)
	}),
}

var nodeNextTimestampCmd = &cobra.Command{
	Use:   "next-timestamp <unix>",
	Short: "Set the timestamp of the next block",
	Args:  cobra.ExactArgs(1),
	RunE: nodeAction(func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error) {
		ts, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || ts == 0 {
			return nil, fmt.Errorf("invalid timestamp %q", args[0])
		}
		return map[string]uint64{"timestamp": ts}, tools.SetNextBlockTimestamp(cmd.Context(), ts)
	}),
}

var nodeAutomineCmd = &cobra.Command{
	Use:       "automine <on|off>",
	Short:     "Toggle mining on every transaction",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: nodeAction(func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error) {
		var enabled bool
		switch strings.ToLower(args[0]) {
		case "on", "true":
			enabled = true
		case "off", "false":
		default:
			return nil, fmt.Errorf("expected on or off, got %q", args[0])
		}
		return map[string]bool{"automine": enabled}, tools.SetAutomine(cmd.Context(), enabled)
	}),
}

var nodeSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Snapshot chain state and print the snapshot id",
	Args:  cobra.NoArgs,
	RunE: nodeAction(func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error) {
		id, err := tools.Snapshot(cmd.Context())
		return map[string]string{"id": id}, err
	}),
}

var nodeRevertCmd = &cobra.Command{
	Use:   "revert <id>",
	Short: "Revert chain state to a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: nodeAction(func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error) {
		reverted, err := tools.Revert(cmd.Context(), args[0])
		return map[string]bool{"reverted": reverted}, err
	}),
}

var nodeImpersonateCmd = &cobra.Command{
	Use:   "impersonate <address>",
	Short: "Start or stop impersonating an account",
	Args:  cobra.ExactArgs(1),
	RunE: nodeAction(func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error) {
		result := map[string]any{"address": args[0], "impersonating": !impersonateStop}
		if impersonateStop {
			return result, tools.StopImpersonating(cmd.Context(), args[0])
		}
		return result, tools.Impersonate(cmd.Context(), args[0])
	}),
}

var nodeSendRawCmd = &cobra.Command{
	Use:   "send-raw <0xtx>",
	Short: "Broadcast a signed raw transaction",
	Args:  cobra.ExactArgs(1),
	RunE: nodeAction(func(cmd *cobra.Command, tools *application.NodeTools, args []string) (any, error) {
		hash, err := tools.SendRawTransaction(cmd.Context(), args[0])
		return map[string]string{"tx_hash": hash}, err
	}),
}

func init() {
	deployCmd.Flags().StringSliceVar(&deployArgs, "args", nil, "constructor arguments, comma separated")

	callCmd.Flags().StringVar(&callABIFile, "abi", "", "ABI JSON file, - for stdin")
	callCmd.Flags().StringSliceVar(&callArgs, "args", nil, "method arguments, comma separated")
	callCmd.Flags().StringVar(&callValue, "value", "", "ether to send with payable methods")
	_ = callCmd.MarkFlagRequired("abi")

	sendCmd.Flags().StringVar(&sendUnit, "unit", string(units.Ether), "amount unit: wei, gwei or ether")

	contractsCmd.Flags().Uint64Var(&scanWindow, "window", 0, "blocks to scan (default $SCAN_WINDOW)")

	nodeImpersonateCmd.Flags().BoolVar(&impersonateStop, "stop", false, "stop impersonating")

	nodeCmd.AddCommand(nodeMineCmd, nodeIncreaseTimeCmd, nodeNextTimestampCmd, nodeAutomineCmd,
		nodeSnapshotCmd, nodeRevertCmd, nodeImpersonateCmd, nodeSendRawCmd)
	rootCmd.AddCommand(deployCmd, callCmd, sendCmd, contractsCmd, nodeCmd)
}
