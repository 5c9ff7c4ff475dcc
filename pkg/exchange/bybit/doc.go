// Package bybit adapts the Bybit V5 API to the exchange.Exchange interface.
//
// The adapter targets the unified V5 surface: one REST host serves every
// product, with the market selected by the category query parameter, and
// business errors are reported through the retCode envelope field rather
// than HTTP status codes. Market data streams use the public endpoints
// under /v5/public; balance and other account topics require the private
// endpoint, which authenticates with a signed frame at connect time.
//
// See https://bybit-exchange.github.io/docs/v5/intro for protocol details.
package bybit
