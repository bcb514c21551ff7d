package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/service"
)

var (
	simulateURL       string
	simulateOrderID   uint64
	simulatePaymentID string
	simulateStatus    string
)

// simulateCmd stands in for the payment provider during development: it signs
// a webhook payload with the shared secret and posts it to the service.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send a signed payment webhook to the service",
	Run:   runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simulateURL, "url", "http://localhost:8000/payments/webhook", "Webhook endpoint URL")
	simulateCmd.Flags().Uint64Var(&simulateOrderID, "order-id", 0, "Order id the payment settles")
	simulateCmd.Flags().StringVar(&simulatePaymentID, "payment-id", "", "Payment id (generated when empty)")
	simulateCmd.Flags().StringVar(&simulateStatus, "status", "SUCCESS", "Provider payment status (SUCCESS or FAILED)")
	_ = simulateCmd.MarkFlagRequired("order-id")
}

func runSimulate(_ *cobra.Command, _ []string) {
	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		logrus.Fatal("WEBHOOK_SECRET environment variable is required")
	}

	paymentID := strings.TrimSpace(simulatePaymentID)
	if paymentID == "" {
		paymentID = "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	payload, err := json.Marshal(map[string]any{
		"payment_id": paymentID,
		"order_id":   simulateOrderID,
		"status":     strings.ToUpper(strings.TrimSpace(simulateStatus)),
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to encode payload")
	}

	req, err := http.NewRequest(http.MethodPost, simulateURL, bytes.NewReader(payload))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", service.ComputeSignature(payload, []byte(secret)))

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		logrus.WithError(err).Fatal("Webhook request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	logrus.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"order_id":   simulateOrderID,
		"status":     resp.StatusCode,
		"response":   string(body),
	}).Info("Webhook delivered")
}
