package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/daniacca/graphitecore/pkg/client"
)

func main() {
	var (
		baseURL = flag.String("server", "http://localhost:8080", "reactord base URL")
		id      = flag.String("id", "demo", "reactor ID")
		ticks   = flag.Int("ticks", 30, "ticks to run while the control rods are withdrawn")
		keep    = flag.Bool("keep", false, "leave the reactor running instead of shutting it down")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := startup(ctx, client.New(*baseURL, nil), *id, *ticks, *keep); err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
		os.Exit(1)
	}
}

// startup walks a fresh reactor through a cold start: build it with the
// control rods fully in, kick it with the starter rod, withdraw the rods
// step by step, then scram and take it apart again.
func startup(ctx context.Context, c *client.Client, id string, ticks int, keep bool) error {
	rb := client.NewReactor(id).
		Seed(42).
		Console("control-room").
		ControlRodDepth(1.0).
		Rod(reactor.RodControl, id+"-control-1").
		Rod(reactor.RodControl, id+"-control-2").
		Pipe(id + "-loop").
		Notify(client.NewNotification().Kinds(reactor.EventMeltedDown, reactor.EventPipesRuptured, reactor.EventExploded))

	st, err := c.CreateReactor(ctx, rb)
	var se *client.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest {
		// left over from an earlier run
		if err := c.DeleteReactor(ctx, id); err != nil {
			return err
		}
		st, err = c.CreateReactor(ctx, rb)
	}
	if err != nil {
		return fmt.Errorf("create reactor: %w", err)
	}
	fmt.Printf("Reactor %s created: %d slots, control rods at %.2f\n", st.ID, st.SlotCount, st.ControlRodDepth)

	for i := 1; i <= 4; i++ {
		placed, err := c.InsertRod(ctx, id, reactor.RodFuel, fmt.Sprintf("%s-fuel-%d", id, i), -1)
		if err != nil {
			return fmt.Errorf("insert fuel rod: %w", err)
		}
		fmt.Printf("  fuel rod %s -> slot %d\n", placed.Rod.ID, placed.Slot)
	}
	placed, err := c.InsertRod(ctx, id, reactor.RodStarter, id+"-starter", -1)
	if err != nil {
		return fmt.Errorf("insert starter rod: %w", err)
	}
	fmt.Printf("  starter rod %s -> slot %d\n", placed.Rod.ID, placed.Slot)

	depth := 1.0
	for tick := 1; tick <= ticks; tick++ {
		if tick%5 == 0 && depth > 0.1 {
			if depth, err = c.SetControlRodDepth(ctx, id, depth-0.15); err != nil {
				return fmt.Errorf("move control rods: %w", err)
			}
		}
		report, err := c.Tick(ctx, id)
		if err != nil {
			return fmt.Errorf("tick: %w", err)
		}
		fmt.Printf("tick %3d depth=%.2f k=%.4f neutrons=%-12.4g T=%7.2fK p=%-10.4g %s\n",
			report.Tick, depth, report.Kinetics.KFactor, report.Neutrons,
			report.Thermal.Temperature, report.Thermal.Pressure, report.Safety.Phase())
		if report.Safety.MeltedDown || report.Safety.Exploded {
			fmt.Println("Safety limit crossed, stopping the sequence")
			break
		}
	}

	if keep {
		return c.Start(ctx, id, 0)
	}

	st, err = c.Status(ctx, id)
	if err != nil {
		return err
	}
	if st.Destroyed {
		fmt.Println("Reactor destroyed")
		return nil
	}
	if st.Safety.MeltedDown {
		if _, err := c.Demolish(ctx, id); err != nil {
			return fmt.Errorf("demolish: %w", err)
		}
		fmt.Println("Melted core demolished")
		return nil
	}

	if _, err := c.Scram(ctx, id); err != nil {
		return fmt.Errorf("scram: %w", err)
	}
	fmt.Println("Scram: control rods fully inserted")
	for {
		placed, err := c.PullRod(ctx, id)
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			break
		}
		if err != nil {
			return fmt.Errorf("pull rod: %w", err)
		}
		fmt.Printf("  pulled %s from slot %d\n", placed.Rod.ID, placed.Slot)
	}
	if _, err := c.Deconstruct(ctx, id); err != nil {
		return fmt.Errorf("deconstruct: %w", err)
	}
	fmt.Println("Reactor deconstructed")
	return nil
}
