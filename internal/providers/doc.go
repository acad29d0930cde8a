// Package providers implements the translation provider abstraction: a
// uniform contract over chat-style LLM endpoints and stateless machine
// translation APIs, plus the per-day usage gate for metered providers.
package providers
