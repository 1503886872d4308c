// Pairs a wallet through the wallet-connection sidecar and prints the connected account.
// The pairing QR code is drawn in the terminal. Ctrl-C disconnects.
// Usage: go run ./cmd/connect -chain xrpl:testnet
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/config"
	"github.com/HefaCom/health-florence-sub002/internal/logging"
	"github.com/HefaCom/health-florence-sub002/internal/session"
)

func main() {
	chain := flag.String("chain", "xrpl:mainnet", "CAIP-2 chain to request")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if err := run(*chain, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(chain, logLevel string) error {
	envErr := godotenv.Load()
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", envErr)
	}

	wc, err := config.LoadWalletConnect()
	if err != nil {
		return err
	}
	logger, err := logging.New(logLevel, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := session.NewBus()
	bridge := session.NewBridgeClient(wc.BridgeURL, bus, logger)
	defer bridge.Close()

	presenter := session.NewQRPresenter(
		func(code session.PairingQR) {
			fmt.Println("Scan with your wallet:")
			fmt.Println(code.Terminal)
			fmt.Println(code.URI)
		},
		func() { fmt.Println("Pairing code dismissed.") },
		logger,
	)

	ended := make(chan struct{}, 1)
	manager := session.NewManager(bridge, bus, session.Options{
		ProjectID: wc.ProjectID,
		Metadata:  wc.Metadata(),
		Presenter: presenter,
		Logger:    logger,
		OnStatus: func(st session.Status) {
			if st.State == session.StateConnected && st.Account != nil {
				fmt.Printf("Account: %s (%s)\n", st.Account.Address, st.Account.Chain)
			}
		},
	})
	defer manager.Close()

	account, sess, err := manager.Connect(ctx, chain)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	logger.Info("connected", zap.String("topic", sess.Topic), zap.String("address", account.Address))

	// the wallet may end the session on its side
	sub := bus.Subscribe(sess.Topic)
	defer sub.Close()
	go func() {
		for {
			select {
			case ev := <-sub.Events():
				if ev.Kind == session.EventSessionDelete {
					ended <- struct{}{}
					return
				}
			case <-sub.Done():
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-ended:
		fmt.Println("Wallet ended the session.")
		return nil
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.Disconnect(disconnectCtx); err != nil {
		return err
	}
	fmt.Println("Disconnected.")
	return nil
}
