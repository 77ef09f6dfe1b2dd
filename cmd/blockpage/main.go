// Command blockpage flattens, compiles and updates block page templates.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/blockpage/cmd/blockpage/commands"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "flatten":
		err = commands.FlattenCommand(args)
	case "compile":
		err = commands.CompileCommand(args)
	case "preview":
		err = commands.PreviewCommand(args)
	case "update":
		err = commands.UpdateCommand(args)
	case "validate":
		err = commands.ValidateCommand(args)
	case "watch":
		err = commands.WatchCommand(args)
	case "schemas":
		err = commands.SchemasCommand(args)
	case "cache":
		err = commands.CacheCommand(args)
	case "version":
		fmt.Printf("blockpage version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		commands.PrintError(err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("blockpage - Block-based page templates")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  blockpage flatten <template> [--write]             Print or store the flat form")
	fmt.Println("  blockpage compile <template> [--context=<file>]    Compile regions")
	fmt.Println("  blockpage preview <template> [--context=<file>]    Print editor preview data")
	fmt.Println("  blockpage update <template> <request.json>         Apply an editor save")
	fmt.Println("  blockpage validate [directory]                     Validate templates")
	fmt.Println("  blockpage watch                                    Recompile on change")
	fmt.Println("  blockpage schemas [--json]                         List block schemas")
	fmt.Println("  blockpage cache flush                              Drop cached fragments")
	fmt.Println("  blockpage version                                  Show version")
	fmt.Println("  blockpage help                                     Show this help")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -c, --config <file>   Config file (default: ./blockpage.yaml)")
	fmt.Println("  -d, --dir <dir>       Project directory (default: .)")
	fmt.Println("  -r, --region <name>   Limit update to a region (repeatable)")
	fmt.Println("  --log-level <level>   debug, info, warn or error")
	fmt.Println("  --json                JSON output")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  blockpage flatten templates/home.yaml --json")
	fmt.Println("  blockpage compile templates/home.yaml --context=ctx.yaml")
	fmt.Println("  blockpage update templates/home.yaml save.json --region=main")
}
