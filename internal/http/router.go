package http

import (
	"net/http"
)

type RouterConfig struct {
	Stations *StationHandler
	Members  *MemberHandler
	Catalog  *CatalogHandler
	Bills    *BillHandler
	// Metrics is mounted at /metrics when set.
	Metrics    http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	if s := cfg.Stations; s != nil {
		mux.HandleFunc("GET /stations", s.List)
		mux.HandleFunc("POST /stations", s.Register)
		mux.HandleFunc("GET /stations/{id}", s.Get)
		mux.HandleFunc("POST /stations/{id}/session", s.Start)
		mux.HandleFunc("POST /stations/{id}/participants", s.Join)
		mux.HandleFunc("POST /stations/{id}/participants/{participant}/stop", s.Stop)
		mux.HandleFunc("POST /stations/{id}/participants/{participant}/toggle", s.TogglePlayer)
		mux.HandleFunc("POST /stations/{id}/toggle", s.ToggleStation)
		mux.HandleFunc("POST /stations/{id}/time", s.AddTime)
		mux.HandleFunc("DELETE /stations/{id}/time", s.ReduceTime)
		mux.HandleFunc("POST /stations/{id}/move", s.Move)
		mux.HandleFunc("POST /stations/{id}/items", s.AddItem)
		mux.HandleFunc("DELETE /stations/{id}/items/{line}", s.RemoveItem)
		mux.HandleFunc("PUT /stations/{id}/discount", s.SetDiscount)
		mux.HandleFunc("POST /stations/{id}/checkout", s.Checkout)
	}

	if m := cfg.Members; m != nil {
		mux.HandleFunc("GET /members", m.List)
		mux.HandleFunc("POST /members", m.Enroll)
		mux.HandleFunc("GET /members/{id}", m.Get)
		mux.HandleFunc("GET /members/{id}/balance", m.Balance)
		mux.HandleFunc("POST /members/{id}/recharges", m.PurchaseRecharge)
	}

	if c := cfg.Catalog; c != nil {
		mux.HandleFunc("GET /packages", c.List)
		mux.HandleFunc("POST /packages", c.Save)
		mux.HandleFunc("GET /packages/{id}", c.Get)
		mux.HandleFunc("PUT /packages/{id}", c.Save)
	}

	if b := cfg.Bills; b != nil {
		mux.HandleFunc("GET /bills", b.List)
		mux.HandleFunc("GET /bills/{id}", b.Get)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}
