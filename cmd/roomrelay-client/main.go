// roomrelay-client is a headless diagnostic client: it joins a channel,
// negotiates with every member it finds, sends a silent audio track, and logs
// the remote tracks it receives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/channelkit/roomrelay/internal/client"
	"github.com/channelkit/roomrelay/internal/config"
)

type logRenderer struct {
	log *slog.Logger
}

func (r *logRenderer) RenderTrack(remoteID int, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	r.log.Info("remote track",
		"remote_id", remoteID,
		"kind", track.Kind().String(),
		"codec", track.Codec().MimeType,
	)
	// Drain the track so the underlying interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	}()
}

func (r *logRenderer) RemoveTracks(remoteID int) {
	r.log.Info("remote departed", "remote_id", remoteID)
}

func main() {
	var (
		serverURL = flag.String("server", "ws://127.0.0.1:8080/ws", "signaling endpoint URL")
		channel   = flag.String("channel", "", "channel name to join (required)")
		stunURLs  = flag.String("stun-urls", "", "comma-separated STUN URLs")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *channel == "" {
		fmt.Fprintln(os.Stderr, "-channel is required")
		os.Exit(2)
	}

	iceServers, err := config.ParseICEServersFromConvenienceEnv(*stunURLs, "", "", "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "roomrelay-client")
	if err != nil {
		logger.Error("create audio track", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.Config{
		ServerURL:  *serverURL,
		Channel:    *channel,
		ICEServers: iceServers,
		Tracks:     []webrtc.TrackLocal{track},
		Renderer:   &logRenderer{log: logger},
		Logger:     logger,
	})
	if err != nil {
		logger.Error("dial failed", "err", err)
		os.Exit(1)
	}

	joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = c.Join(joinCtx)
	cancel()
	switch {
	case err == client.ErrChannelFull:
		logger.Error("channel is full", "channel", *channel)
		os.Exit(1)
	case err != nil:
		logger.Error("join failed", "err", err)
		os.Exit(1)
	}
	logger.Info("joined", "channel", *channel, "client_id", c.ID())

	// Keep a silent Opus frame flowing so remote peers see a live track.
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-ticker.C:
				_ = track.WriteSample(media.Sample{
					Data:     []byte{0xf8, 0xff, 0xfe},
					Duration: 20 * time.Millisecond,
				})
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("interrupted, leaving channel")
		_ = c.Leave()
	case <-c.Done():
		if err := c.Err(); err != nil {
			logger.Error("connection closed", "err", err)
			os.Exit(1)
		}
		logger.Info("connection closed")
	}
}
