package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strconv"
)

// Echoes what the gateway forwarded, for local runs
func main() {
	port := flag.Int("port", 3001, "port to listen on")
	flag.Parse()

	name := "dummy-backend:" + strconv.Itoa(*port)

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.RequestURI())

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"message":          "Hello from " + name,
			"method":           r.Method,
			"path":             r.URL.Path,
			"query":            r.URL.RawQuery,
			"x_forwarded_for":  r.Header.Get("X-Forwarded-For"),
			"x_real_ip":        r.Header.Get("X-Real-IP"),
			"x_forwarded_host": r.Header.Get("X-Forwarded-Host"),
		})
	})

	addr := ":" + strconv.Itoa(*port)
	log.Printf("Dummy backend starting on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal(err)
	}
}
