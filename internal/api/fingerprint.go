package api

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"

	"taptimise/internal/model"
)

// fingerprint identifies requests whose results are interchangeable. Only
// seeded requests are reproducible, so unseeded ones get "". Delivery
// fields do not change the result and are left out.
func fingerprint(req model.OptimizeRequest, defaults any) string {
	if req.Seed == 0 {
		return ""
	}
	req.Async = false
	req.CallbackURL = ""
	req.CallbackSecret = ""
	b, err := json.Marshal(struct {
		Req      model.OptimizeRequest `json:"req"`
		Defaults any                   `json:"defaults"`
	}{req, defaults})
	if err != nil {
		return ""
	}
	h := xxh3.Hash128(b)
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}
