package event

// Prices are decimal ether strings.

type EventCreated struct {
	Header      Header `json:"header"`
	EventID     uint64 `json:"event_id"`
	Name        string `json:"name"`
	TicketPrice string `json:"ticket_price"`
	TotalSupply uint64 `json:"total_supply"`
}

type EventDeactivated struct {
	Header  Header `json:"header"`
	EventID uint64 `json:"event_id"`
}

type TicketMinted struct {
	Header  Header `json:"header"`
	TokenID uint64 `json:"token_id"`
	EventID uint64 `json:"event_id"`
	Buyer   string `json:"buyer"`
	QRHash  string `json:"qr_hash"`
}

type TicketListed struct {
	Header  Header `json:"header"`
	TokenID uint64 `json:"token_id"`
	Seller  string `json:"seller"`
	Price   string `json:"price"`
}

type ListingCancelled struct {
	Header  Header `json:"header"`
	TokenID uint64 `json:"token_id"`
}

type TicketSold struct {
	Header  Header `json:"header"`
	TokenID uint64 `json:"token_id"`
	Seller  string `json:"seller"`
	Buyer   string `json:"buyer"`
	Price   string `json:"price"`
	Fee     string `json:"fee"`
}

type TicketUsed struct {
	Header  Header `json:"header"`
	TokenID uint64 `json:"token_id"`
}
