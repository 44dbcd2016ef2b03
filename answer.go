package askscot

const (
	// ThreadedReplyOpt is the name of the option indicating a threaded-reply answer
	ThreadedReplyOpt = "threadedReply"
	// BroadcastOpt is the name of the option indicating a broadcast answer
	BroadcastOpt = "broadcast"
	// ThreadTimestamp is the name of the option indicating the explicit timestamp of the thread to reply to
	ThreadTimestamp = "threadTimestamp"
	// EphemeralAnswerToOpt marks an answer to be sent as an ephemeral message to the provided userID
	EphemeralAnswerToOpt = "ephemeralMsgToUserID"
	// ResponseURLOpt marks an answer to be sent to a slash command's response url
	ResponseURLOpt = "responseURL"
)

// Answer holds the text of a reply along with the options to use when delivering it
type Answer struct {
	Text string

	// Options to apply when sending a message
	Options []AnswerOption
}

// AnswerOption defines a function applied to Answers
type AnswerOption func(sendOpts map[string]string)

// AnswerInExistingThread sets threaded replying with the existing thread timestamp
func AnswerInExistingThread(threadTimestamp string) AnswerOption {
	return func(sendOpts map[string]string) {
		sendOpts[ThreadedReplyOpt] = "true"
		sendOpts[ThreadTimestamp] = threadTimestamp
	}
}

// AnswerWithBroadcast sets broadcast of a threaded reply to its channel
func AnswerWithBroadcast() AnswerOption {
	return func(sendOpts map[string]string) {
		sendOpts[BroadcastOpt] = "true"
	}
}

// AnswerEphemeral sends the answer as an ephemeral message to the provided userID
func AnswerEphemeral(userID string) AnswerOption {
	return func(sendOpts map[string]string) {
		sendOpts[EphemeralAnswerToOpt] = userID
	}
}

// AnswerToResponseURL sends the answer to a slash command's response url
func AnswerToResponseURL(responseURL string) AnswerOption {
	return func(sendOpts map[string]string) {
		sendOpts[ResponseURLOpt] = responseURL
	}
}

// ApplyAnswerOpts applies answering options to build the send configuration
func ApplyAnswerOpts(opts ...AnswerOption) (sendOptions map[string]string) {
	sendOptions = make(map[string]string)
	for _, opt := range opts {
		opt(sendOptions)
	}

	return sendOptions
}
