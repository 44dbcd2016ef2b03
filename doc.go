/*
Package askscot provides a slack bot answering questions over socket mode.

Every inbound event is classified as a mention, a direct message, a slash command or an ignored
event. A reply decision is then made for it and composed into an answer:
  - Mentions with a question are answered by the language model, when one is configured, and
    with the current date and time otherwise
  - Direct messages with a question are answered by the language model, when one is configured,
    and with a short informational reply otherwise
  - Messages containing "hello" get a greeting
  - The echo slash command gets its text echoed back

Example code:

	package main

	import (
		"log"

		"github.com/alexandre-normand/askscot"
		"github.com/alexandre-normand/askscot/ai"
		"github.com/alexandre-normand/askscot/config"
	)

	func main() {
		v := config.NewViperWithDefaults()
		if err := config.BindEnv(v); err != nil {
			log.Fatal(err)
		}

		b := askscot.NewBot("askscot", v)
		if config.AIEnabled(v) {
			b = b.WithAnswerProviderErr(ai.NewClaude(v.GetString(config.AIAPIKeyKey)))
		}

		bot, err := b.Build()
		if err != nil {
			log.Fatal(err)
		}

		err = bot.Run()
		if err != nil {
			log.Fatal(err)
		}
	}
*/
package askscot
