package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"github.com/zyfty/zyftyd/internal/config"
)

const (
	urlFlagName       = "url"
	accountFlagName   = "account"
	assetFlagName     = "asset"
	amountFlagName    = "amount"
	idFlagName        = "id"
	toFlagName        = "to"
	authorityFlagName = "authority"

	timeout = 15 * time.Second
)

var (
	urlFlag = &cli.StringFlag{
		Name:  urlFlagName,
		Usage: "the url where to reach zyftyd",
		Value: fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort),
	}
	accountFlag = &cli.StringFlag{
		Name:  accountFlagName,
		Usage: "account acting on the request, fallback to ZYFTYD_ACCOUNT",
	}
	assetFlag = &cli.StringFlag{
		Name:  assetFlagName,
		Usage: "settlement asset of the ledger",
		Value: "usdz",
	}
	amountFlag = &cli.Uint64Flag{
		Name:     amountFlagName,
		Usage:    "amount in base units of the settlement asset",
		Required: true,
	}
	idFlag = &cli.StringFlag{
		Name:     idFlagName,
		Usage:    "id of the asset or lien",
		Required: true,
	}
	toFlag = &cli.StringFlag{
		Name:     toFlagName,
		Usage:    "account credited with the deposit",
		Required: true,
	}
	authorityFlag = &cli.StringFlag{
		Name:     authorityFlagName,
		Usage:    "account allowed to transfer asset ownership",
		Required: true,
	}
)

func getAccount(ctx *cli.Context) (string, error) {
	account := ctx.String(accountFlagName)
	if account == "" {
		account = viper.GetString(accountFlagName)
	}
	if account == "" {
		return "", fmt.Errorf("missing account, use --%s or ZYFTYD_ACCOUNT", accountFlagName)
	}
	return account, nil
}
