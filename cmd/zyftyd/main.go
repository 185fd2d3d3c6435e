package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/zyfty/zyftyd/internal/config"
	restservice "github.com/zyfty/zyftyd/internal/interface/rest"
)

// Version will be set during build time
var Version string

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "zyftyd"
	app.Usage = "real estate tokenization daemon: liens, asset registry and sale escrow"
	app.UsageText = "Run the daemon or query a running instance through its rest api"
	app.Flags = config.Flags
	app.Action = mainAction
	app.Commands = append(
		app.Commands,
		balanceCmd,
		depositCmd,
		settingsCmd,
		updateEscrowCmd,
		assetCmd,
		saleCmd,
		lienCmd,
	)

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func mainAction(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	log.Debugf("zyftyd config: %s", cfg)

	svc, err := restservice.NewService(Version, restservice.Config{Port: cfg.Port}, cfg)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)

	if err := svc.Start(); err != nil {
		return err
	}

	<-sigChan

	log.Info("shutting down service...")
	svc.Stop()
	return nil
}

var (
	balanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Get the settlement balance of an account",
		Flags:  []cli.Flag{urlFlag, accountFlag, assetFlag},
		Action: balanceAction,
	}
	depositCmd = &cli.Command{
		Name:   "deposit",
		Usage:  "Credit an account with new settlement funds, restricted to the registry admin",
		Flags:  []cli.Flag{urlFlag, accountFlag, assetFlag, toFlag, amountFlag},
		Action: depositAction,
	}
	settingsCmd = &cli.Command{
		Name:   "settings",
		Usage:  "Get the registry settings",
		Flags:  []cli.Flag{urlFlag},
		Action: settingsAction,
	}
	updateEscrowCmd = &cli.Command{
		Name:   "update-escrow",
		Usage:  "Set the account allowed to transfer asset ownership",
		Flags:  []cli.Flag{urlFlag, accountFlag, authorityFlag},
		Action: updateEscrowAction,
	}
	assetCmd = &cli.Command{
		Name:   "asset",
		Usage:  "Get an asset of the registry",
		Flags:  []cli.Flag{urlFlag, idFlag},
		Action: getAction("assets"),
	}
	saleCmd = &cli.Command{
		Name:   "sale",
		Usage:  "Get the sale of an asset",
		Flags:  []cli.Flag{urlFlag, idFlag},
		Action: getAction("sales"),
	}
	lienCmd = &cli.Command{
		Name:   "lien",
		Usage:  "Get a lien with its current balance",
		Flags:  []cli.Flag{urlFlag, idFlag},
		Action: getAction("liens"),
	}
)

func balanceAction(ctx *cli.Context) error {
	account, err := getAccount(ctx)
	if err != nil {
		return err
	}
	res, err := get(fmt.Sprintf(
		"%s/v1/ledger/%s/balance?account=%s",
		ctx.String(urlFlagName), url.PathEscape(ctx.String(assetFlagName)),
		url.QueryEscape(account),
	))
	if err != nil {
		return err
	}
	fmt.Println(res)
	return nil
}

func depositAction(ctx *cli.Context) error {
	account, err := getAccount(ctx)
	if err != nil {
		return err
	}
	res, err := post(fmt.Sprintf(
		"%s/v1/ledger/%s/deposit",
		ctx.String(urlFlagName), url.PathEscape(ctx.String(assetFlagName)),
	), account, map[string]any{
		"account": ctx.String(toFlagName),
		"amount":  ctx.Uint64(amountFlagName),
	})
	if err != nil {
		return err
	}
	fmt.Println(res)
	return nil
}

func settingsAction(ctx *cli.Context) error {
	res, err := get(fmt.Sprintf("%s/v1/settings", ctx.String(urlFlagName)))
	if err != nil {
		return err
	}
	fmt.Println(res)
	return nil
}

func updateEscrowAction(ctx *cli.Context) error {
	account, err := getAccount(ctx)
	if err != nil {
		return err
	}
	res, err := post(
		fmt.Sprintf("%s/v1/settings/escrow", ctx.String(urlFlagName)), account,
		map[string]string{"authority": ctx.String(authorityFlagName)},
	)
	if err != nil {
		return err
	}
	fmt.Println(res)
	return nil
}

func getAction(resource string) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		res, err := get(fmt.Sprintf(
			"%s/v1/%s/%s", ctx.String(urlFlagName), resource,
			url.PathEscape(ctx.String(idFlagName)),
		))
		if err != nil {
			return err
		}
		fmt.Println(res)
		return nil
	}
}
