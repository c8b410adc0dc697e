package domain

// Advice is coaching for the agent working a lead: what to send next and
// how to steer the conversation towards a visit or a booking.
type Advice struct {
	SuggestedReply string
	ClosingTip     string
	Objections     []Objection
	// HotAlert and FakeAlert are set when the model flags the lead.
	HotAlert  *string
	FakeAlert *string
}

// Objection is a canned answer to a common pushback.
type Objection struct {
	Label string
	Reply string
}
