// README: Demo; runs the itinerary flow once against Gemini using GEMINI_API_KEY.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"tripflow/internal/ai"
	"tripflow/internal/flow"
	"tripflow/internal/travel"
)

func main() {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	gateway, err := ai.NewGeminiGateway(ctx, ai.GeminiConfig{APIKey: apiKey})
	if err != nil {
		log.Fatalf("Failed to initialize AI gateway: %v", err)
	}
	defer gateway.Close()

	registry, err := travel.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load flows: %v", err)
	}
	invoker := flow.NewInvoker(registry, gateway)

	input := map[string]string{
		"destination": "Jaipur",
		"budget":      "25000 INR",
		"interests":   "forts, street food, handicrafts",
		"duration":    "3",
		"language":    "en",
	}
	fmt.Printf("Request: %v\n", input)

	res := invoker.Invoke(ctx, travel.FlowGenerateItinerary, input)
	if !res.Succeeded() {
		log.Fatalf("Flow failed (%s): %s: %v", res.Failure.Kind, res.Failure.Message, res.Failure.Err)
	}

	out, _ := json.MarshalIndent(res.Output, "", "  ")
	fmt.Printf("Latency: %s\n%s\n", res.Latency, out)
}
