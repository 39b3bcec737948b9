package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/ids"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func main() {
	base := getenv("SHOPCORE_SMOKE_URL", "http://localhost:8080")
	username := getenv("SHOPCORE_SMOKE_USERNAME", "admin")
	password := os.Getenv("SHOPCORE_SMOKE_PASSWORD")
	if password == "" {
		log.Fatal("SHOPCORE_SMOKE_PASSWORD is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	var login struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
		"otp":      os.Getenv("SHOPCORE_SMOKE_OTP"),
	}, http.StatusOK, &login); err != nil {
		log.Fatalf("login: %v", err)
	}
	c.token = login.AccessToken

	customerID := "smoke-" + ids.New()
	var created commerce.Customer
	if err := c.call(ctx, http.MethodPost, "/customers", commerce.CustomerInput{
		ID:    customerID,
		Name:  "Smoke Test",
		Email: "smoke@example.com",
		Orders: []commerce.OrderInput{{
			Description: "smoke order",
			LineItems:   []commerce.LineItemInput{{Description: "probe", Quantity: 3}},
		}},
	}, http.StatusCreated, &created); err != nil {
		log.Fatalf("create customer: %v", err)
	}

	var fetched commerce.Customer
	if err := c.call(ctx, http.MethodGet, "/customers/"+customerID, nil, http.StatusOK, &fetched); err != nil {
		log.Fatalf("get customer: %v", err)
	}
	if len(fetched.Orders) != 1 || len(fetched.Orders[0].LineItems) != 1 || fetched.Orders[0].LineItems[0].Quantity != 3 {
		log.Fatalf("unexpected customer read back: %+v", fetched)
	}

	if err := c.call(ctx, http.MethodDelete, "/customers/"+customerID, nil, http.StatusNoContent, nil); err != nil {
		log.Fatalf("delete customer: %v", err)
	}
	if err := c.call(ctx, http.MethodGet, "/customers/"+customerID+"/orders/"+created.Orders[0].ID, nil, http.StatusNotFound, nil); err != nil {
		log.Fatalf("order should be gone with its customer: %v", err)
	}

	fmt.Printf("smoke test passed: customer=%s order=%s\n", customerID, created.Orders[0].ID)
}

func (c *client) call(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, payload)
	}
	if out != nil {
		return json.Unmarshal(payload, out)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
