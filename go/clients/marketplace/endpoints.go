package marketplace

// REST endpoints of the marketplace API consumed by the live auction core
const (
	auctionEndpoint       = "/api/auctions/%s"
	bidHistoryEndpoint    = "/api/auctions/%s/bids?page=%d&limit=%d"
	paymentStatusEndpoint = "/api/payments/auction/%s/status"
)
