package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/livekit/protocol/logger"

	lksdk "github.com/livekit/session-sdk-go"
	"github.com/livekit/session-sdk-go/pkg/loopback"
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "session-demo",
		Usage: "runs a scripted conference against an in-memory media engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a yaml config file",
				EnvVars: []string{"SESSION_DEMO_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "room",
				Usage:   "room name",
				EnvVars: []string{"SESSION_DEMO_ROOM"},
			},
			&cli.StringFlag{
				Name:    "identity",
				Usage:   "local participant identity",
				EnvVars: []string{"SESSION_DEMO_IDENTITY"},
			},
			&cli.StringSliceFlag{
				Name:  "peers",
				Usage: "identities of the scripted remote participants",
			},
			&cli.IntFlag{
				Name:  "rounds",
				Usage: "number of speaker changes to play",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"SESSION_DEMO_LOG_LEVEL"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	confString, err := readConfigFile(c.String("config"))
	if err != nil {
		return err
	}
	conf, err := NewConfig(confString, c)
	if err != nil {
		return err
	}

	logger.InitFromConfig(&conf.Logging, "session-demo")
	lksdk.SetLogger(logger.GetLogger())

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := loopback.NewEngine(loopback.WithLogger(logger.GetLogger()))
	return newScenario(conf, engine).run(ctx)
}

type scenario struct {
	conf   *Config
	engine *loopback.Engine

	room   *lksdk.Room
	peers  []*lksdk.Room
	status func(func())
}

func newScenario(conf *Config, engine *loopback.Engine) *scenario {
	return &scenario{
		conf:   conf,
		engine: engine,
		status: debounce.New(100 * time.Millisecond),
	}
}

func (s *scenario) run(ctx context.Context) error {
	cb := lksdk.NewRoomCallback()
	cb.OnParticipantConnected = func(rp *lksdk.RemoteParticipant) {
		fmt.Printf("+ %s joined\n", rp.Identity())
		s.printStatus()
	}
	cb.OnParticipantDisconnected = func(rp *lksdk.RemoteParticipant) {
		fmt.Printf("- %s left\n", rp.Identity())
		s.printStatus()
	}
	cb.OnTrackSubscribed = func(_ lksdk.MediaTrack, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		fmt.Printf("  subscribed to %s %s of %s\n", pub.Source(), pub.Kind(), rp.Identity())
	}
	cb.OnTrackMuted = func(pub lksdk.TrackPublication, p lksdk.Participant) {
		fmt.Printf("  %s muted %s\n", p.Identity(), pub.Source())
	}
	cb.OnActiveSpeakersChanged = func([]lksdk.Participant) {
		s.printStatus()
	}
	cb.OnConnectionStateChanged = func(state lksdk.ConnectionState) {
		fmt.Printf("connection %s\n", state)
	}
	cb.OnDisconnectedWithReason = func(reason lksdk.DisconnectionReason) {
		fmt.Printf("disconnected: %s\n", reason)
	}

	s.room = s.newRoom(cb)
	if err := s.room.Connect(ctx, loopback.Scheme+s.conf.Room, loopback.Token(s.conf.Room, s.conf.Identity)); err != nil {
		return err
	}
	defer s.room.Disconnect()

	lp := s.room.LocalParticipant
	if _, err := lp.EnableCamera(ctx, lksdk.CameraOptions{}); err != nil {
		return err
	}
	mic, err := lp.EnableMicrophone(ctx)
	if err != nil {
		return err
	}

	for _, identity := range s.conf.Peers {
		peer, err := s.joinPeer(ctx, identity)
		if err != nil {
			return err
		}
		s.peers = append(s.peers, peer)
	}

	if s.conf.FlipCamera {
		mode, err := lp.FlipCamera(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("camera now facing %s\n", mode)
	}
	if s.conf.ScreenShare {
		if _, err := lp.ToggleScreenShare(ctx, lksdk.ScreenShareOptions{Audio: true}); err != nil {
			return err
		}
	}

	speakers := append([]string{s.conf.Identity}, s.conf.Peers...)
	for i := 0; i < s.conf.Rounds; i++ {
		speaker := speakers[i%len(speakers)]
		if err := s.engine.SetActiveSpeakers(s.conf.Room, speaker); err != nil {
			return err
		}
		if speaker == s.conf.Identity && i > 0 {
			if _, err := lp.ToggleMute(mic.SID()); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.conf.Interval):
		}
	}

	if s.conf.ScreenShare {
		if _, err := lp.ToggleScreenShare(ctx, lksdk.ScreenShareOptions{}); err != nil {
			return err
		}
	}
	for _, peer := range s.peers {
		peer.Disconnect()
	}
	// let the last status print
	time.Sleep(200 * time.Millisecond)
	return nil
}

func (s *scenario) newRoom(cb *lksdk.RoomCallback) *lksdk.Room {
	return lksdk.NewRoom(lksdk.RoomParams{
		Engine:   s.engine,
		Capture:  loopback.NewCapture(),
		Sink:     loopback.NewSink(),
		Callback: cb,
	})
}

func (s *scenario) joinPeer(ctx context.Context, identity string) (*lksdk.Room, error) {
	peer := s.newRoom(nil)
	if err := peer.Connect(ctx, loopback.Scheme+s.conf.Room, loopback.Token(s.conf.Room, identity)); err != nil {
		return nil, err
	}
	if _, err := peer.LocalParticipant.EnableCamera(ctx, lksdk.CameraOptions{}); err != nil {
		peer.Disconnect()
		return nil, err
	}
	if _, err := peer.LocalParticipant.EnableMicrophone(ctx); err != nil {
		peer.Disconnect()
		return nil, err
	}
	return peer, nil
}

func (s *scenario) printStatus() {
	s.status(func() {
		var lines []string
		for _, p := range s.room.Participants() {
			marker := " "
			if p.IsSpeaking() {
				marker = "*"
			}
			lines = append(lines, fmt.Sprintf("  %s %-12s %d tracks", marker, p.Identity(), len(p.TrackPublications())))
		}
		fmt.Printf("[%s] %d participants\n%s\n", s.room.Name(), len(lines), strings.Join(lines, "\n"))
	})
}
