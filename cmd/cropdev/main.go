// Command cropdev is a local stand-in for the crop, signing, and
// detection collaborators. It serves the same JSON contracts the editor
// speaks in production, backed by a directory of design images.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/pkg/devcrop"
	"github.com/halcyonforge/cutplane/util/log"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:49522", "listen address")
	dir := flag.String("dir", ".", "directory of design images to register")
	flag.Parse()

	svc := devcrop.NewService("http://" + *addr)

	loaded, err := svc.LoadDirectory(context.Background(), *dir)
	if err != nil {
		log.Printf("Failed to load %s: %v", *dir, err)
		os.Exit(1)
	}
	log.Printf("cropdev registered %d design image(s) from %s", loaded, *dir)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /splits/{id}/crops", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Sections []collab.CropRequest `json:"sections"`
			Force    bool                 `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		assets, err := svc.GenerateCrops(r.Context(), r.PathValue("id"), req.Sections, req.Force)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{"assets": assets})
	})

	mux.HandleFunc("GET /assets/sign", func(w http.ResponseWriter, r *http.Request) {
		ttlMs, _ := strconv.ParseInt(r.URL.Query().Get("ttl_ms"), 10, 64)
		if ttlMs <= 0 {
			ttlMs = (5 * time.Minute).Milliseconds()
		}
		signed, err := svc.SignURL(r.Context(), r.URL.Query().Get("key"), time.Duration(ttlMs)*time.Millisecond)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, signed)
	})

	mux.HandleFunc("GET /assets/raw", func(w http.ResponseWriter, r *http.Request) {
		data, ok := svc.Asset(r.URL.Query().Get("key"))
		if !ok {
			http.Error(w, "Unknown asset", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	})

	mux.HandleFunc("GET /splits/recent", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		writeJSON(w, map[string]interface{}{"splits": svc.RecentSplits(limit)})
	})

	mux.HandleFunc("GET /splits/{id}", func(w http.ResponseWriter, r *http.Request) {
		split, err := svc.GetSplit(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, split)
	})

	mux.HandleFunc("POST /detect", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ImageRef string `json:"image_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		sections, err := svc.DetectSections(r.Context(), req.ImageRef)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{"sections": sections})
	})

	fmt.Printf("cropdev listening on %s\n", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Printf("Server failed: %v", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
