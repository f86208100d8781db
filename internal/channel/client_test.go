package channel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/config"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

type fakeChannel struct {
	mu          sync.Mutex
	tokenCalls  int
	requests    []*http.Request
	bodies      []string
	handler     func(req *http.Request) *http.Response
	tokenStatus int
}

func (f *fakeChannel) roundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.URL.Path == "/v3/token" {
		f.tokenCalls++
		if f.tokenStatus != 0 {
			return jsonResponse(f.tokenStatus, `{"error":"invalid_client"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`), nil
	}
	body := ""
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		body = string(raw)
	}
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)
	return f.handler(req), nil
}

func newTestClient(t *testing.T, fake *fakeChannel) *Client {
	t.Helper()
	cfg := config.ChannelConfig{
		BaseURL:      "http://channel.test",
		ClientID:     "client",
		ClientSecret: "secret",
		ServiceName:  "channel-sync-test",
		PageLimit:    2,
	}
	client, err := NewClient(cfg, WithHTTPClient(&http.Client{Transport: roundTripFunc(fake.roundTrip)}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return client
}

func testWindow() Window {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: end.Add(-24 * time.Hour), End: end}
}

const orderJSON = `{
  "purchaseOrderId": "%s",
  "customerOrderId": "C-1",
  "orderDate": "2026-02-28T10:00:00Z",
  "shippingInfo": {"phone": "5550100", "postalAddress": {"name": "Ada", "address1": "1 Main St", "city": "Austin", "state": "TX", "postalCode": "78701", "country": "USA"}},
  "orderLines": [{"lineNumber": "1", "sku": "PFZ-A", "productName": "Widget", "quantity": 2, "unitPrice": "30.00", "shippingCharge": 4.5}]
}`

func TestGetReleasedOrders_FollowsCursorAndReusesToken(t *testing.T) {
	fake := &fakeChannel{}
	fake.handler = func(req *http.Request) *http.Response {
		if req.URL.Query().Get("cursor") == "" {
			return jsonResponse(http.StatusOK, `{"meta":{"totalCount":2,"limit":2,"nextCursor":"page-2"},"orders":[`+strings.Replace(orderJSON, "%s", "PO-1", 1)+`]}`)
		}
		return jsonResponse(http.StatusOK, `{"meta":{"totalCount":2,"limit":2},"orders":[`+strings.Replace(orderJSON, "%s", "PO-2", 1)+`]}`)
	}
	client := newTestClient(t, fake)

	orders, err := client.GetReleasedOrders(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("GetReleasedOrders: %v", err)
	}
	if len(orders) != 2 || orders[0].PurchaseOrderID != "PO-1" || orders[1].PurchaseOrderID != "PO-2" {
		t.Fatalf("unexpected orders %+v", orders)
	}
	if fake.tokenCalls != 1 {
		t.Fatalf("expected one token exchange, got %d", fake.tokenCalls)
	}
	first := fake.requests[0]
	if got := first.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Fatalf("unexpected auth header %q", got)
	}
	if first.Header.Get(headerServiceName) != "channel-sync-test" || first.Header.Get(headerCorrelationID) == "" {
		t.Fatalf("missing channel headers %v", first.Header)
	}
	if first.URL.Query().Get("limit") != "2" || first.URL.Query().Get("createdStartDate") != "2026-02-28T00:00:00Z" {
		t.Fatalf("unexpected query %s", first.URL.RawQuery)
	}
	if fake.requests[1].URL.Query().Get("cursor") != "page-2" {
		t.Fatalf("second page should carry cursor, got %s", fake.requests[1].URL.RawQuery)
	}

	line := orders[0].OrderLines[0]
	if Cents(line.UnitPrice) != 3000 || Cents(line.ShippingCharge) != 450 {
		t.Fatalf("unexpected money parsing %s %s", line.UnitPrice, line.ShippingCharge)
	}
	if err := orders[0].Validate(); err != nil {
		t.Fatalf("expected valid order: %v", err)
	}
}

func TestGetReleasedOrders_MalformedFeedIsFatal(t *testing.T) {
	fake := &fakeChannel{handler: func(*http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"meta": [not json`)
	}}
	client := newTestClient(t, fake)

	_, err := client.GetReleasedOrders(context.Background(), testWindow())
	if !pkgerrors.IsCode(err, pkgerrors.CodeMalformedFeed) || !pkgerrors.IsFatal(err) {
		t.Fatalf("expected fatal malformed feed error, got %v", err)
	}
}

func TestGetReleasedOrders_MissingMetaIsMalformed(t *testing.T) {
	fake := &fakeChannel{handler: func(*http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"orders":[]}`)
	}}
	client := newTestClient(t, fake)

	if _, err := client.GetReleasedOrders(context.Background(), testWindow()); !pkgerrors.IsCode(err, pkgerrors.CodeMalformedFeed) {
		t.Fatalf("expected malformed feed, got %v", err)
	}
}

func TestGetReleasedOrders_ServerErrorIsTransient(t *testing.T) {
	fake := &fakeChannel{handler: func(*http.Request) *http.Response {
		return jsonResponse(http.StatusBadGateway, `upstream down`)
	}}
	client := newTestClient(t, fake)

	_, err := client.GetReleasedOrders(context.Background(), testWindow())
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Retryable {
		t.Fatal("dependency errors should be retryable")
	}
}

func TestTokenFailureIsDependencyError(t *testing.T) {
	fake := &fakeChannel{tokenStatus: http.StatusUnauthorized, handler: func(*http.Request) *http.Response {
		t.Fatal("api should not be called without a token")
		return nil
	}}
	client := newTestClient(t, fake)

	if err := client.Acknowledge(context.Background(), "PO-1"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestShipLines_SendsCarrierAndTracking(t *testing.T) {
	fake := &fakeChannel{handler: func(*http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{}`)
	}}
	client := newTestClient(t, fake)

	err := client.ShipLines(context.Background(), "PO 7", []LineShipment{{
		LineNumber:     "2",
		Quantity:       1,
		Carrier:        enums.CarrierUPS,
		TrackingNumber: " 1Z999 ",
		TrackingURL:    "https://www.ups.com/track?tracknum=1Z999",
	}})
	if err != nil {
		t.Fatalf("ShipLines: %v", err)
	}
	req := fake.requests[0]
	if req.Method != http.MethodPost || req.URL.EscapedPath() != "/v3/orders/PO%207/shipping" {
		t.Fatalf("unexpected request %s %s", req.Method, req.URL.EscapedPath())
	}
	var payload shipmentRequest
	if err := json.Unmarshal([]byte(fake.bodies[0]), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	line := payload.OrderShipment.OrderLines[0]
	if line.Carrier != "UPS" || line.TrackingNumber != "1Z999" || line.ShipDateTime != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected shipment line %+v", line)
	}
}

func TestShipLines_RejectsUnmappedCarrier(t *testing.T) {
	fake := &fakeChannel{}
	client := newTestClient(t, fake)
	err := client.ShipLines(context.Background(), "PO-1", []LineShipment{{LineNumber: "1", TrackingNumber: "x", Carrier: "Pigeon"}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(fake.requests) != 0 {
		t.Fatal("no request should be sent")
	}
}

func TestPushInventory_ReturnsFeedID(t *testing.T) {
	fake := &fakeChannel{handler: func(req *http.Request) *http.Response {
		if req.URL.Query().Get("feedType") != "inventory" {
			t.Fatalf("unexpected query %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusAccepted, `{"feedId":"feed-42"}`)
	}}
	client := newTestClient(t, fake)

	feedID, err := client.PushInventory(context.Background(), []InventoryUpdate{{SKU: "PFZ-A", Quantity: 3}, {SKU: "PFZ-B", Quantity: 0}})
	if err != nil {
		t.Fatalf("PushInventory: %v", err)
	}
	if feedID != "feed-42" {
		t.Fatalf("unexpected feed id %q", feedID)
	}
	var feed inventoryFeed
	if err := json.Unmarshal([]byte(fake.bodies[0]), &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed.Inventory) != 2 || feed.Inventory[0].Quantity.Amount != 3 || feed.Inventory[1].Quantity.Unit != "EACH" {
		t.Fatalf("unexpected feed %+v", feed)
	}
}

func TestRetireItem_NotFoundIsIdempotent(t *testing.T) {
	fake := &fakeChannel{handler: func(req *http.Request) *http.Response {
		if req.Method != http.MethodDelete {
			t.Fatalf("unexpected method %s", req.Method)
		}
		return jsonResponse(http.StatusNotFound, `{"error":"unknown sku"}`)
	}}
	client := newTestClient(t, fake)
	if err := client.RetireItem(context.Background(), "PFZ-A"); err != nil {
		t.Fatalf("expected nil for unknown sku, got %v", err)
	}
}

func TestGetReturns(t *testing.T) {
	fake := &fakeChannel{handler: func(*http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"meta":{"totalCount":1},"returnOrders":[{"returnOrderId":"R-1","purchaseOrderId":"PO-1","returnOrderDate":"2026-02-28T10:00:00Z","sku":"PFZ-A","quantity":1,"refundAmount":"42.50","returnReason":"damaged"}]}`)
	}}
	client := newTestClient(t, fake)

	returns, err := client.GetReturns(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("GetReturns: %v", err)
	}
	if len(returns) != 1 || Cents(returns[0].RefundAmount) != 4250 {
		t.Fatalf("unexpected returns %+v", returns)
	}
	if err := returns[0].Validate(); err != nil {
		t.Fatalf("expected valid return: %v", err)
	}
}

func TestRawOrderValidate(t *testing.T) {
	order := RawOrder{PurchaseOrderID: "PO-1", OrderDate: time.Now()}
	if err := order.Validate(); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing lines, got %v", err)
	}

	order.ShippingInfo.PostalAddress = PostalAddress{Name: "A", Address1: "1", City: "C", State: "S", PostalCode: "P", Country: "US"}
	order.OrderLines = []OrderLine{{LineNumber: "1", SKU: "X", Quantity: 1, UnitPrice: decimal.RequireFromString("-1")}}
	if err := order.Validate(); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for negative price, got %v", err)
	}

	order.OrderLines[0].UnitPrice = decimal.RequireFromString("1")
	if err := order.Validate(); err != nil {
		t.Fatalf("expected valid order, got %v", err)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(config.ChannelConfig{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected missing credentials to fail")
	}
}
