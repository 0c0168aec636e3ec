package main

import (
	"context"
	"fmt"
	"log"
	"time"

	datalogger "github.com/grillbaer/data-logger"
)

func main() {
	flow, err := datalogger.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	callback := func(batch []datalogger.QueuedReading) error {
		for _, q := range batch {
			fmt.Printf("%s source=%s status=%s value=%s %s\n",
				q.Reading.Timestamp.Format(time.RFC3339Nano),
				q.SourceID,
				q.Reading.Status,
				q.Reading.Formatted,
				q.Reading.Unit,
			)
		}
		return nil
	}

	flow.Options(datalogger.WithArchive(datalogger.NewCallbackSink("stdout", callback)))
	if err := flow.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
