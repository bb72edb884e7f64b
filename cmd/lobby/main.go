package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/DoyleJ11/lobby-sync/internal/chat"
	"github.com/DoyleJ11/lobby-sync/internal/config"
	"github.com/DoyleJ11/lobby-sync/internal/lobby"
	"github.com/DoyleJ11/lobby-sync/internal/logging"
	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"github.com/DoyleJ11/lobby-sync/internal/transport/wsclient"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const help = `commands:
  create [public|friends|private]   host a new lobby
  join <code>                       join a lobby by code
  list                              show open public lobbies
  ready | unready
  char <n>                          select character n
  kick <session> | ban <session>    host only
  start                             start the game once everyone is ready
  say <text>
  who                               show the roster
  leave
  quit`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Must(cfg.Dev)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("client stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.ClientConfig, logger *zap.Logger) error {
	client := wsclient.New(cfg.RelayURL, wsclient.WithLogger(logger.Named("relay")))
	ident := roster.Identity{PersistentID: cfg.PersistentID, DisplayName: cfg.DisplayName}

	chatLog := chat.NewLog(chat.DefaultMaxLines)
	chatLog.OnLine(func(l chat.Line) {
		switch l.Kind {
		case chat.KindPlayer:
			fmt.Println(l.Text)
		default:
			fmt.Printf("* %s\n", l.Text)
		}
	})

	states := make(chan lobby.State, 8)
	sessCfg := lobby.DefaultConfig()
	sessCfg.Capacity = cfg.Capacity
	sessCfg.KickGrace = cfg.KickGrace
	sessCfg.RequestTimeout = cfg.RequestTimeout

	sess := lobby.NewSession(ctx, sessCfg, lobby.Deps{
		Service:  client,
		Identity: ident,
		Chat:     chatLog,
		Log:      logger.Named("session"),
		Phases: lobby.PhaseLoaderFunc(func(_ context.Context, name string) error {
			fmt.Printf("-- %s --\n", name)
			return nil
		}),
		OnState: func(s lobby.State) {
			select {
			case states <- s:
			default:
			}
		},
	})
	defer sess.Close()

	sess.Roster().Subscribe(func(ev roster.Event) {
		if ev.Kind == roster.EventAdded {
			fmt.Printf("  [%d] %s\n", ev.Record.SessionID, ev.Record.DisplayName)
		}
	})

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-states:
				fmt.Printf("state: %s\n", s)
				if s == lobby.Disconnected {
					if r := sess.CurrentReason(); r != "" {
						fmt.Println(r)
					}
				}
			}
		}
	})
	g.Go(func() error {
		fmt.Println(help)
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := handle(gctx, sess, client, cfg, line); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

var errQuit = errors.New("quit")

func handle(ctx context.Context, sess *lobby.Session, client *wsclient.Client, cfg config.ClientConfig, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
	case "create":
		vis := transport.VisibilityPublic
		if arg != "" {
			v, err := transport.ParseVisibility(arg)
			if err != nil {
				fmt.Println(err)
				return nil
			}
			vis = v
		}
		sess.CreateLobby(cfg.DisplayName+"'s Lobby", vis)
	case "join":
		if arg == "" {
			fmt.Println("usage: join <code>")
			return nil
		}
		sess.JoinByID(strings.ToUpper(arg))
	case "list":
		infos, err := client.Lobbies(ctx)
		if err != nil {
			fmt.Printf("list lobbies: %v\n", err)
			return nil
		}
		if len(infos) == 0 {
			fmt.Println("no open lobbies")
		}
		for _, info := range infos {
			fmt.Printf("%s  %d/%d  %s\n", info.Code, info.Members, info.Capacity, info.Metadata[lobby.MetadataName])
		}
	case "ready":
		sess.RequestReady(true)
	case "unready":
		sess.RequestReady(false)
	case "char":
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Println("usage: char <n>")
			return nil
		}
		sess.RequestCharacter(n)
	case "kick", "ban":
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			fmt.Printf("usage: %s <session>\n", cmd)
			return nil
		}
		sess.RequestKick(roster.SessionID(id), cmd == "ban")
	case "start":
		sess.RequestStartGame()
	case "say":
		sess.SendChat(arg)
	case "who":
		v := sess.View()
		fmt.Printf("%s lobby=%s host=%t you=%d\n", v.State, v.LobbyID, v.IsHost, v.LocalID)
		for _, r := range sess.Roster().Snapshot() {
			ch := "-"
			if r.HasCharacter() {
				ch = strconv.Itoa(r.SelectedCharacter)
			}
			fmt.Printf("  [%d] %-16s ready=%-5t char=%s\n", r.SessionID, r.DisplayName, r.IsReady, ch)
		}
	case "leave":
		sess.Disconnect("")
	case "quit", "exit":
		return errQuit
	default:
		fmt.Println(help)
	}
	return nil
}
