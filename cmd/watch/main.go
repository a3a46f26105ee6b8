package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"nexzywatch/internal/api"
	"nexzywatch/internal/config"
	"nexzywatch/internal/domain"
	"nexzywatch/internal/keychain"
	"nexzywatch/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open keychain: %v", err)
	}
	mgr := session.NewManager(cfg, store)

	// No deadline on the command itself: every request already carries the
	// configured timeout via the pipeline's HTTP client, and a paged listing
	// may legitimately take several requests.
	ctx := context.Background()

	if err := run(ctx, mgr, cfg, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func openStore(cfg config.Config) (keychain.Store, error) {
	if cfg.KeychainKey == "" {
		log.Printf("NEXZY_KEYCHAIN_KEY not set, credentials will not be persisted")
		return keychain.NewMemStore(), nil
	}
	return keychain.Open(cfg.KeychainPath, cfg.KeychainKey)
}

func run(ctx context.Context, mgr *session.Manager, cfg config.Config, command string, args []string) error {
	switch command {
	case "pair":
		if len(args) != 1 {
			return fmt.Errorf("usage: watch pair <code>")
		}
		if err := mgr.Pair(ctx, args[0]); err != nil {
			return err
		}
		if user, ok := mgr.User(); ok {
			fmt.Printf("paired as %s (%d coins)\n", user.Username, user.Coins)
		} else {
			fmt.Println("paired")
		}
		return nil

	case "status":
		fmt.Printf("state: %s\n", mgr.State())
		if user, ok := mgr.User(); ok {
			fmt.Printf("user: %s\n", user.Username)
		}
		return nil

	case "validate":
		if mgr.Validate(ctx) {
			fmt.Println("session valid")
		} else {
			fmt.Println("session invalid, re-pair required")
		}
		return nil

	case "coins":
		resp, err := mgr.API().CoinBalance(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("balance: %d\n", resp.Balance)
		if resp.DailyBonusAvailable != nil && *resp.DailyBonusAvailable {
			fmt.Println("daily bonus available")
		}
		return nil

	case "games":
		pager := api.NewPager(cfg.PageLimit, func(ctx context.Context, limit int, cursor *api.Cursor) (api.Page[domain.Game], error) {
			return mgr.API().GameLibrary(ctx, limit, cursor)
		})
		for pager.HasNext() {
			games, err := pager.Next(ctx)
			if err != nil {
				return err
			}
			for _, game := range games {
				fmt.Printf("%s\t%s\n", game.ID, game.Name)
			}
		}
		return nil

	case "history":
		pager := api.NewPager(cfg.PageLimit, func(ctx context.Context, limit int, cursor *api.Cursor) (api.Page[domain.Question], error) {
			return mgr.API().QuestionHistory(ctx, limit, cursor)
		})
		for pager.HasNext() {
			questions, err := pager.Next(ctx)
			if err != nil {
				return err
			}
			for _, q := range questions {
				fmt.Printf("%s\tQ: %s\n\tA: %s\n", q.CreatedAt.Format("2006-01-02 15:04"), q.Message, q.Response)
			}
		}
		return nil

	case "chat":
		if len(args) < 1 {
			return fmt.Errorf("usage: watch chat <message> [gameId]")
		}
		gameID := ""
		if len(args) > 1 {
			gameID = args[1]
		}
		resp, err := mgr.API().StartChatSession(ctx, args[0], gameID)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n(%d coins remaining)\n", resp.Response, resp.CoinsRemaining)
		return nil

	case "logout":
		mgr.Logout()
		fmt.Println("logged out")
		return nil

	case "unpair":
		if err := mgr.Unpair(ctx); err != nil {
			log.Printf("unpair endpoint failed (local session cleared anyway): %v", err)
		}
		fmt.Println("unpaired")
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: watch <command> [args]

commands:
  pair <code>          exchange a pairing code for credentials
  status               show session state
  validate             check the session against the backend
  coins                show coin balance
  games                list the game library
  history              list question history
  chat <msg> [gameId]  start a chat session
  logout               clear the local session
  unpair               release the device and clear the session`)
}
