package domain

// SMSDispatch is the outcome of handing a message to an SMS provider.
// Status and Message are the provider's own values and are passed through
// to callers unchanged when Accepted is false.
type SMSDispatch struct {
	Accepted    bool
	Status      string
	Message     string
	ExternalRef string
}

// HostedNumber is the provider-hosted SIM a user calls to prove possession.
type HostedNumber struct {
	MSISDN string
}
