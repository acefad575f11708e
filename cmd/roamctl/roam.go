package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hallway-labs/hallway/internal/gateway"
	"github.com/hallway-labs/hallway/internal/roam"
)

var (
	serverURL string
	peerCount int
	interval  time.Duration
	duration  time.Duration
)

var roamCmd = &cobra.Command{
	Use:   "roam",
	Short: "Connect simulated peers and wander the space",
	RunE: func(cmd *cobra.Command, args []string) error {
		var wg sync.WaitGroup
		for i := 0; i < peerCount; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				if err := runPeer(n); err != nil {
					slog.Error("peer failed", "peer", n, "error", err)
				}
			}(i)
		}
		wg.Wait()
		return nil
	},
}

func init() {
	roamCmd.Flags().StringVar(&serverURL, "server", "ws://localhost:8080/ws", "presence server websocket URL")
	roamCmd.Flags().IntVar(&peerCount, "peers", 2, "number of simulated peers")
	roamCmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "delay between moves")
	roamCmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "how long to roam")
	rootCmd.AddCommand(roamCmd)
}

func runPeer(n int) error {
	client := roam.NewClient(serverURL)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	log := slog.With("peer", n)

	// Peers seen via snapshot/arrival events; candidates for pairing.
	var mu sync.Mutex
	known := make(map[string]struct{})

	go func() {
		for msg := range client.Incoming {
			log.Info("event", "type", msg.Type, "payload", string(msg.Payload))
			switch msg.Type {
			case gateway.EventCurrentPlayers:
				var players []gateway.PlayerState
				if json.Unmarshal(msg.Payload, &players) == nil {
					mu.Lock()
					for _, p := range players {
						known[p.ID] = struct{}{}
					}
					mu.Unlock()
				}
			case gateway.EventPlayerJoined:
				var p gateway.PlayerState
				if json.Unmarshal(msg.Payload, &p) == nil {
					mu.Lock()
					known[p.ID] = struct{}{}
					mu.Unlock()
				}
			case gateway.EventPlayerDisconnected:
				var p gateway.PlayerIDPayload
				if json.Unmarshal(msg.Payload, &p) == nil {
					mu.Lock()
					delete(known, p.ID)
					mu.Unlock()
				}
			}
		}
	}()

	if err := client.Send(gateway.EventRegisterPlayer, gateway.RegisterPlayerPayload{
		UserID: fmt.Sprintf("roamer-%d", n),
	}); err != nil {
		return err
	}
	if err := client.Send(gateway.EventReady, nil); err != nil {
		return err
	}

	deadline := time.Now().Add(duration)
	x, y := rand.Float64()*800, rand.Float64()*600

	for time.Now().Before(deadline) {
		time.Sleep(interval)

		x += rand.Float64()*40 - 20
		y += rand.Float64()*40 - 20
		if err := client.Send(gateway.EventPlayerMove, gateway.PlayerMovePayload{X: x, Y: y}); err != nil {
			return err
		}

		// Occasionally pair with a known peer, or report having wandered off.
		switch rand.Intn(10) {
		case 0:
			mu.Lock()
			var target string
			for id := range known {
				target = id
				break
			}
			mu.Unlock()
			if target != "" {
				client.Send(gateway.EventStartConversation, gateway.StartConversationPayload{TargetSocketID: target})
			}
		case 1:
			client.Send(gateway.EventGotAway, gateway.GotAwayPayload{NearbyPlayers: nil})
		}
	}
	return nil
}
