package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/session"
	"github.com/spf13/cobra"
)

func newHashPasscodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-passcode <passcode>",
		Short: "Print the bcrypt hash to put in auth.passcode_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := gate.HashPasscode(args[0])
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the remembered authentication so the next launch asks again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer func() { _ = rdb.Close() }()

			return session.NewFlagStore(rdb, logger).Clear(cmd.Context())
		},
	}
}
