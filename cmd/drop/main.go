package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"qrdrop/internal/client"
	"qrdrop/internal/core"

	"github.com/mdp/qrterminal/v3"
)

// Half-block glyphs for a compact terminal QR code.
const (
	blackWhite = "▄"
	blackBlack = " "
	whiteBlack = "▀"
	whiteWhite = "█"
)

func main() {
	server := flag.String("server", envOr("QRDROP_SERVER", "http://localhost:8113"), "qrdrop server URL")
	name := flag.String("name", "", "base name for the stored file or archive")
	noQR := flag.Bool("no-qr", false, "print only the link")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] FILE...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	parsedPaths, err := core.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := client.New(*server, nil).Upload(ctx, parsedPaths, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error uploading: %v\n", err)
		os.Exit(1)
	}

	if result.Kind == "archive" {
		fmt.Printf("✓ Bundled %d files into %s\n", len(result.Files), result.Filename)
	} else {
		fmt.Printf("✓ Uploaded %s\n", result.Filename)
	}
	fmt.Println(result.URL)

	if *noQR {
		return
	}
	fmt.Println()
	qrterminal.GenerateWithConfig(result.URL, qrterminal.Config{
		Level:          qrterminal.M,
		Writer:         os.Stdout,
		HalfBlocks:     true,
		BlackChar:      blackBlack,
		WhiteBlackChar: whiteBlack,
		WhiteChar:      whiteWhite,
		BlackWhiteChar: blackWhite,
		QuietZone:      1,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
