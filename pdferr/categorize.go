package pdferr

// Category is the user-facing description of a failure.
type Category struct {
	Kind        Kind
	Title       string
	Message     string
	UserMessage string
	Suggestions []string
	CanRetry    bool
}

var categories = map[Kind]Category{
	KindValidation: {
		Title:       "File Validation Error",
		UserMessage: "There was an issue with your file.",
		Suggestions: []string{
			"Make sure your file is a valid PDF",
			"Check that the file size is under the limit",
			"Try with a different file",
		},
	},
	KindDocumentLoad: {
		Title:       "Document Load Error",
		UserMessage: "Unable to open your PDF file.",
		Suggestions: []string{
			"Make sure the PDF is not corrupted",
			"Check if the PDF is password protected",
			"Try with a different PDF file",
		},
	},
	KindDocumentProcessing: {
		Title:       "Processing Error",
		UserMessage: "Unable to process your PDF file.",
		Suggestions: []string{
			"Make sure the PDF is not corrupted",
			"Try with a different PDF file",
			"Check if the PDF is password protected",
		},
	},
	KindMemoryExceeded: {
		Title:       "Memory Limit Exceeded",
		UserMessage: "The file is too large to process.",
		Suggestions: []string{
			"Try with a smaller file",
			"Use the compress tool first",
			"Split large files into smaller parts",
		},
	},
	KindTimeout: {
		Title:       "Processing Timeout",
		UserMessage: "Processing took too long and was cancelled.",
		Suggestions: []string{
			"Try with a smaller file",
			"Try again in a few moments",
		},
	},
	KindUnknown: {
		Title:       "Unexpected Error",
		UserMessage: "An unexpected error occurred.",
		Suggestions: []string{
			"Try with a different file",
			"Contact support if the problem persists",
		},
	},
}

// Categorize maps any error onto its user-facing category.
func Categorize(err error) Category {
	kind := KindOf(err)
	c := categories[kind]
	c.Kind = kind
	c.CanRetry = true
	if err != nil {
		c.Message = err.Error()
	}
	c.Suggestions = append([]string(nil), c.Suggestions...)
	return c
}
