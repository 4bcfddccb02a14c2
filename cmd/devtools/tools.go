package main

import (
	"fmt"
	"strings"
	"time"

	"devdash/internal/application"
	"devdash/internal/units"

	"github.com/spf13/cobra"
)

var (
	convertFrom string
	convertTo   string

	decodeABIFile string

	verifyName       string
	verifyABIFile    string
	verifySourceFile string
	verifyCompiler   string
	verifyOptimized  bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <value>",
	Short: "Convert between wei, gwei and ether, or between hex and decimal",
	Example: `  devtools convert 1.5 --from ether --to wei
  devtools convert 0xff --from hex --to decimal`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := strings.ToLower(convertFrom), strings.ToLower(convertTo)
		var (
			out string
			err error
		)
		switch {
		case from == "hex" && to == "decimal":
			out, err = units.HexToDecimal(args[0])
		case from == "decimal" && to == "hex":
			out, err = units.DecimalToHex(args[0])
		default:
			out, err = units.Convert(args[0], units.Unit(from), units.Unit(to))
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash <text|0xbytes>",
	Short: "Print the keccak256 hash and the 4-byte selector of the input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"keccak256": units.Keccak256Hex(args[0]),
			"selector":  units.FunctionSelector(args[0]),
		})
	},
}

var checksumCmd = &cobra.Command{
	Use:   "checksum <address>",
	Short: "Print the EIP-55 checksum form of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := units.ChecksumAddress(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), address)
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <calldata>",
	Short: "Decode calldata against an ABI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		abiJSON, err := readFile(decodeABIFile)
		if err != nil {
			return err
		}
		decoded, err := application.DecodeHexCalldata(abiJSON, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), decoded)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <address>",
	Short: "Save verification metadata for a contract in the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := application.VerifyRequest{
			Address:   args[0],
			Name:      verifyName,
			Compiler:  verifyCompiler,
			Optimized: verifyOptimized,
		}
		if verifyABIFile != "" {
			abiJSON, err := readFile(verifyABIFile)
			if err != nil {
				return err
			}
			req.ABI = abiJSON
		}
		if verifySourceFile != "" {
			source, err := readFile(verifySourceFile)
			if err != nil {
				return err
			}
			req.Source = string(source)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		v, err := application.VerifyContract(cmd.Context(), store, req, time.Now())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), v)
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile <file.sol>",
	Short: "Compile a Solidity file and print the first contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readFile(args[0])
		if err != nil {
			return err
		}
		session, err := newSession()
		if err != nil {
			return err
		}
		defer session.Close()
		playground, err := application.NewPlayground(newCompiler(), session, nil)
		if err != nil {
			return err
		}
		result, err := playground.Compile(cmd.Context(), string(source))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertFrom, "from", "ether", "source unit: wei, gwei, ether, hex or decimal")
	convertCmd.Flags().StringVar(&convertTo, "to", "wei", "target unit: wei, gwei, ether, hex or decimal")

	decodeCmd.Flags().StringVar(&decodeABIFile, "abi", "", "ABI JSON file, - for stdin")
	_ = decodeCmd.MarkFlagRequired("abi")

	verifyCmd.Flags().StringVar(&verifyName, "name", "", "contract name")
	verifyCmd.Flags().StringVar(&verifyABIFile, "abi", "", "ABI JSON file")
	verifyCmd.Flags().StringVar(&verifySourceFile, "source", "", "Solidity source file")
	verifyCmd.Flags().StringVar(&verifyCompiler, "compiler", "", "compiler version")
	verifyCmd.Flags().BoolVar(&verifyOptimized, "optimized", false, "compiled with the optimizer")

	rootCmd.AddCommand(convertCmd, hashCmd, checksumCmd, decodeCmd, verifyCmd, compileCmd)
}
