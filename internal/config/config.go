package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// DefaultAgentURL is the Voice Agent converse endpoint.
const DefaultAgentURL = "wss://agent.deepgram.com/v1/agent/converse"

// Config holds application configuration.
type Config struct {
	HTTPAddress    string
	AgentURL       string
	DeepgramKey    string
	DataPath       string
	NoteAPIBaseURL string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	agentURL := os.Getenv("AGENT_URL")
	if agentURL == "" {
		agentURL = DefaultAgentURL
	}

	dgKey := os.Getenv("DEEPGRAM_API_KEY")
	if dgKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - voice agent sessions will not connect")
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = "scribe.db"
	}

	noteAPI := os.Getenv("NOTEAPI_BASE_URL")
	if noteAPI == "" {
		log.Println("Warning: NOTEAPI_BASE_URL not set - uploads and exports will not work")
	}

	supaURL := os.Getenv("SUPABASE_URL")
	supaKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supaURL == "" || supaKey == "" {
		log.Println("Warning: SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set - recording storage disabled")
	}
	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		bucket = "recordings"
	}

	log.Printf("config: HTTP_ADDRESS=%s AGENT_URL=%s DATA_PATH=%s", addr, agentURL, dataPath)
	return Config{
		HTTPAddress:    addr,
		AgentURL:       agentURL,
		DeepgramKey:    dgKey,
		DataPath:       dataPath,
		NoteAPIBaseURL: noteAPI,
		SupabaseURL:    supaURL,
		SupabaseKey:    supaKey,
		SupabaseBucket: bucket,
	}
}
