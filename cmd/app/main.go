package main

import (
	"flag"
	"fmt"
	"os"

	"LatentTrader/internal/di"
	"LatentTrader/pkg/config"

	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	check := flag.Bool("check", false, "print the resolved config and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fail("config", err)
	}

	if *check {
		out := yaml.NewEncoder(os.Stdout)
		out.SetIndent(2)
		if err := out.Encode(cfg); err != nil {
			fail("config encode", err)
		}
		return
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		fail("init", err)
	}
	if err := app.Run(); err != nil {
		fail("run", err)
	}
}

func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "latenttrader: %s: %v\n", stage, err)
	os.Exit(1)
}
