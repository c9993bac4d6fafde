//go:build integration

package integration

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

type initiateRequest struct {
	Amount       float64  `json:"amount"`
	OrderID      string   `json:"orderId"`
	TableRef     string   `json:"tableRef,omitempty"`
	CustomerName string   `json:"customerName,omitempty"`
	Items        []item   `json:"items,omitempty"`
	ExtraCharges []charge `json:"extraCharges,omitempty"`
}

type transactionRef struct {
	TransactionID string `json:"transactionId"`
}

type linkRequest struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
}

func sign(message string) string {
	mac := hmac.New(sha256.New, []byte(gatewaySecret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// callback builds the base64 payload the gateway appends to the success URL.
func callback(t *testing.T, transactionID, status, total string) string {
	t.Helper()

	names := []string{"transaction_code", "status", "total_amount", "transaction_uuid", "product_code", "signed_field_names"}
	values := map[string]string{
		"transaction_code": "000AWEO",
		"status":           status,
		"total_amount":     total,
		"transaction_uuid": transactionID,
		"product_code":     productCode,
	}
	values["signed_field_names"] = strings.Join(names, ",")

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + values[n]
	}
	values["signature"] = sign(strings.Join(parts, ","))

	data, err := json.Marshal(values)
	if err != nil {
		t.Fatalf("marshal callback: %v", err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func tempInitiate(table string) initiateRequest {
	return initiateRequest{
		Amount:       565,
		OrderID:      "temp-" + table,
		CustomerName: "Asha",
		Items: []item{
			{ItemID: "momo", Name: "Chicken Momo", UnitPrice: 250, Quantity: 2},
		},
		ExtraCharges: []charge{{Label: "Service charge", Amount: 50}, {Label: "Packaging", Amount: 15}},
	}
}

func initiate(t *testing.T, req initiateRequest) paymentForm {
	t.Helper()

	resp := doPost(t, "/api/payments/gateway/initiate", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initiate: expected 200, got %d", resp.StatusCode)
	}
	form := decodeJSON[paymentForm](t, resp)
	if form.TransactionID == "" {
		t.Fatal("initiate: transactionId is empty")
	}
	return form
}

func verify(t *testing.T, rawQuery string) verification {
	t.Helper()

	resp := doGet(t, "/api/payments/gateway/verify?"+rawQuery)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", resp.StatusCode)
	}
	return decodeJSON[verification](t, resp)
}

// completePayment initiates a temp-order payment and returns it verified.
func completePayment(t *testing.T, table string) paymentForm {
	t.Helper()

	form := initiate(t, tempInitiate(table))
	data := callback(t, form.TransactionID, "COMPLETE", form.Fields["total_amount"])

	// Same shape as the gateway return: "?data=" appended to an existing query.
	v := verify(t, "transaction_uuid="+form.TransactionID+"?data="+data)
	if v.Status != "success" {
		t.Fatalf("verify: got %q, want success", v.Status)
	}
	return form
}

func TestInitiate_TempOrderForm(t *testing.T) {
	form := initiate(t, tempInitiate("t1"))

	for _, name := range []string{
		"amount", "tax_amount", "product_service_charge", "product_delivery_charge",
		"total_amount", "transaction_uuid", "product_code",
		"success_url", "failure_url", "signed_field_names", "signature",
	} {
		if _, ok := form.Fields[name]; !ok {
			t.Errorf("form field %q missing", name)
		}
	}

	if got := form.Fields["total_amount"]; got != "565" {
		t.Errorf("total_amount: got %q, want 565", got)
	}
	if got := form.Fields["transaction_uuid"]; got != form.TransactionID {
		t.Errorf("transaction_uuid: got %q, want %q", got, form.TransactionID)
	}
	if got := form.Fields["product_code"]; got != productCode {
		t.Errorf("product_code: got %q, want %q", got, productCode)
	}

	want := sign("total_amount=565,transaction_uuid=" + form.TransactionID + ",product_code=" + productCode)
	if got := form.Fields["signature"]; got != want {
		t.Errorf("signature: got %q, want %q", got, want)
	}

	success, err := url.Parse(form.Fields["success_url"])
	if err != nil {
		t.Fatalf("parse success_url: %v", err)
	}
	if success.Path != "/menu/order-status/temp" {
		t.Errorf("success_url path: got %q", success.Path)
	}
	if got := success.Query().Get("transaction_uuid"); got != form.TransactionID {
		t.Errorf("success_url transaction_uuid: got %q, want %q", got, form.TransactionID)
	}
}

func TestInitiate_InvalidAmount(t *testing.T) {
	req := tempInitiate("t1")
	req.Amount = 0

	resp := doPost(t, "/api/payments/gateway/initiate", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestVerify_PendingWithoutData(t *testing.T) {
	form := initiate(t, tempInitiate("t1"))

	v := verify(t, "transactionId="+form.TransactionID)
	if v.Status != "pending" {
		t.Fatalf("status: got %q, want pending", v.Status)
	}
}

func TestVerify_BadSignatureStaysPending(t *testing.T) {
	form := initiate(t, tempInitiate("t1"))

	payload := map[string]string{
		"transaction_code":   "000AWEO",
		"status":             "COMPLETE",
		"total_amount":       "565",
		"transaction_uuid":   form.TransactionID,
		"product_code":       productCode,
		"signed_field_names": "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
		"signature":          "forged",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	v := verify(t, "transaction_uuid="+form.TransactionID+"&data="+url.QueryEscape(base64.StdEncoding.EncodeToString(data)))
	if v.Status != "pending" {
		t.Fatalf("status: got %q, want pending", v.Status)
	}
}

func TestVerify_Canceled(t *testing.T) {
	form := initiate(t, tempInitiate("t2"))
	data := callback(t, form.TransactionID, "CANCELED", form.Fields["total_amount"])

	v := verify(t, "transaction_uuid="+form.TransactionID+"?data="+data)
	if v.Status != "failure" {
		t.Fatalf("status: got %q, want failure", v.Status)
	}
}

func TestVerify_UnknownTransaction(t *testing.T) {
	resp := doGet(t, "/api/payments/gateway/verify?transactionId=does-not-exist")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGatewayCheckout_CreateAndLink(t *testing.T) {
	form := completePayment(t, "t1")

	o := createOrder(t, orderRequest{
		Table:         "t1",
		Items:         []item{{ItemID: "momo", Name: "Chicken Momo", UnitPrice: 250, Quantity: 2}},
		ExtraCharges:  []charge{{Label: "Service charge", Amount: 50}, {Label: "Packaging", Amount: 15}},
		Total:         565,
		PaymentStatus: "paid",
		PaymentMethod: "esewa",
		TransactionID: form.TransactionID,
	})
	if o.PaymentStatus != "paid" {
		t.Errorf("paymentStatus: got %q, want paid", o.PaymentStatus)
	}

	resp := doPost(t, "/api/payments/gateway/link", linkRequest{TransactionID: form.TransactionID, OrderID: o.ID})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("link: expected 200, got %d", resp.StatusCode)
	}

	status := doGet(t, "/api/payments/gateway/status?transactionId="+form.TransactionID)
	defer status.Body.Close()

	tx := decodeJSON[transactionStatus](t, status)
	if tx.Stage != "linked" {
		t.Errorf("stage: got %q, want linked", tx.Stage)
	}
	if tx.OrderID != o.ID {
		t.Errorf("orderId: got %q, want %q", tx.OrderID, o.ID)
	}

	// A later verify reports the linked order.
	v := verify(t, "transactionId="+form.TransactionID)
	if v.OrderID != o.ID {
		t.Errorf("verify orderId: got %q, want %q", v.OrderID, o.ID)
	}

	other := createOrder(t, cashOrder("t1"))
	relink := doPost(t, "/api/payments/gateway/link", linkRequest{TransactionID: form.TransactionID, OrderID: other.ID})
	relink.Body.Close()
	if relink.StatusCode != http.StatusConflict {
		t.Fatalf("link to another order: expected 409, got %d", relink.StatusCode)
	}

	still := doGet(t, "/api/payments/gateway/status?transactionId="+form.TransactionID)
	defer still.Body.Close()
	if tx := decodeJSON[transactionStatus](t, still); tx.OrderID != o.ID {
		t.Errorf("orderId after relink: got %q, want %q", tx.OrderID, o.ID)
	}
}

func TestRecreateOrder(t *testing.T) {
	form := completePayment(t, "t3")

	resp := doPost(t, "/api/payments/gateway/recreate-order", transactionRef{TransactionID: form.TransactionID})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recreate: expected 200, got %d", resp.StatusCode)
	}
	first := decodeJSON[resultResponse](t, resp)
	if first.OrderID == "" {
		t.Fatal("recreate: orderId is empty")
	}
	if !first.Created {
		t.Error("recreate: created should be true on the first call")
	}

	again := doPost(t, "/api/payments/gateway/recreate-order", transactionRef{TransactionID: form.TransactionID})
	defer again.Body.Close()

	second := decodeJSON[resultResponse](t, again)
	if second.OrderID != first.OrderID {
		t.Errorf("recreate twice: got %q, want %q", second.OrderID, first.OrderID)
	}
	if second.Created {
		t.Error("recreate twice: created should be false")
	}

	order := doGet(t, "/api/orders/"+first.OrderID)
	defer order.Body.Close()

	o := decodeJSON[orderResponse](t, order)
	if o.Table != "t3" || o.PaymentStatus != "paid" || o.Total != 565 {
		t.Errorf("recreated order: got table=%s payment=%s total=%v", o.Table, o.PaymentStatus, o.Total)
	}
}

func TestRecreateOrder_NotCompleted(t *testing.T) {
	form := initiate(t, tempInitiate("t2"))

	resp := doPost(t, "/api/payments/gateway/recreate-order", transactionRef{TransactionID: form.TransactionID})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeJSON[resultResponse](t, resp)
	if body.Error != "unrecoverable" {
		t.Errorf("error: got %q, want unrecoverable", body.Error)
	}
}

func TestCancel(t *testing.T) {
	pending := initiate(t, tempInitiate("t7"))

	resp := doPost(t, "/api/payments/gateway/cancel", transactionRef{TransactionID: pending.TransactionID})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.StatusCode)
	}
	if tx := decodeJSON[transactionStatus](t, resp); tx.Status != "CANCELLED" {
		t.Errorf("status: got %q", tx.Status)
	}

	completed := completePayment(t, "t7")

	conflict := doPost(t, "/api/payments/gateway/cancel", transactionRef{TransactionID: completed.TransactionID})
	defer conflict.Body.Close()

	if conflict.StatusCode != http.StatusConflict {
		t.Fatalf("cancel completed: expected 409, got %d", conflict.StatusCode)
	}
}
