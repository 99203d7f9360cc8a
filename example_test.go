package grafo_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/petrijr/grafo"
)

// Example_graphBuilder demonstrates defining and running a small graph
// using the fluent builder API and an in-memory engine.
func Example_graphBuilder() {
	ctx := context.Background()

	g, err := grafo.New("greeting").
		Step("src", grafo.ConstStep("seed", grafo.Values{"text": "hello gophers"})).
		Step("shout", shoutStep()).
		Connect("src", "text", "shout", "text").
		Build()
	if err != nil {
		log.Fatal(err)
	}

	eng := grafo.NewInMemoryEngine()
	defer eng.Close()

	report, err := grafo.Run(ctx, eng, g, grafo.RunConfig{})
	if err != nil {
		log.Fatal(err)
	}

	out, _ := report.Outcome("shout")
	fmt.Println(out.Outputs["text"])
	// Output: HELLO GOPHERS
}

// Example_memoizedRerun shows that rerunning an unchanged graph serves every
// node from the run store instead of executing it again.
func Example_memoizedRerun() {
	ctx := context.Background()

	g := grafo.New("greeting").
		Step("src", grafo.ConstStep("seed", grafo.Values{"text": "hello gophers"})).
		Step("shout", shoutStep()).
		Connect("src", "text", "shout", "text").
		MustBuild()

	eng := grafo.NewInMemoryEngine()
	defer eng.Close()

	first, err := grafo.Run(ctx, eng, g, grafo.RunConfig{})
	if err != nil {
		log.Fatal(err)
	}
	second, err := grafo.Run(ctx, eng, g, grafo.RunConfig{})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("first:", first.Status("shout"))
	fmt.Println("second:", second.Status("shout"))
	// Output:
	// first: SUCCEEDED
	// second: SKIPPED
}

// Example_localRunner demonstrates running a graph through the distributed
// scheduler with an in-process queue and worker pool.
func Example_localRunner() {
	ctx := context.Background()

	reg := grafo.NewRegistry()
	reg.MustRegister(grafo.ConstStep("seed", grafo.Values{"text": "hello gophers"}))
	reg.MustRegister(shoutStep())

	runner := grafo.NewLocalRunner(reg)
	defer runner.Engine.Close()

	if err := runner.StartWorkers(ctx, 2); err != nil {
		log.Fatal(err)
	}
	defer runner.Stop()

	g := grafo.New("greeting").
		Step("src", grafo.ConstStep("seed", grafo.Values{"text": "hello gophers"})).
		Step("shout", shoutStep()).
		Connect("src", "text", "shout", "text").
		MustBuild()

	report, err := runner.Run(ctx, g, grafo.RunConfig{})
	if err != nil {
		log.Fatal(err)
	}

	out, _ := report.Outcome("shout")
	fmt.Println(out.Outputs["text"])
	// Output: HELLO GOPHERS
}

// Example_basicMetrics attaches a BasicMetrics observer and reads its
// counters after two runs of the same graph.
func Example_basicMetrics() {
	ctx := context.Background()

	var metrics grafo.BasicMetrics
	eng := grafo.NewInMemoryEngineWithObserver(&metrics)
	defer eng.Close()

	g := grafo.New("greeting").
		Step("src", grafo.ConstStep("seed", grafo.Values{"text": "hello gophers"})).
		Step("shout", shoutStep()).
		Connect("src", "text", "shout", "text").
		MustBuild()

	for i := 0; i < 2; i++ {
		if _, err := grafo.Run(ctx, eng, g, grafo.RunConfig{}); err != nil {
			log.Fatal(err)
		}
	}

	snap := metrics.Snapshot()
	fmt.Printf("runs=%d succeeded=%d skipped=%d\n",
		snap.RunsCompleted, snap.NodesSucceeded, snap.NodesSkipped)
	// Output: runs=2 succeeded=2 skipped=2
}

func shoutStep() grafo.Step {
	return grafo.FuncStep("shout",
		[]grafo.FieldSpec{grafo.Field("text", grafo.KindString)},
		[]grafo.FieldSpec{grafo.Field("text", grafo.KindString)},
		func(ctx context.Context, in grafo.Values) (grafo.Values, error) {
			return grafo.Values{"text": strings.ToUpper(in["text"].(string))}, nil
		})
}
