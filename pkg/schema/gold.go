package schema

// GoldDescriptor describes the curated financial settlement container.
func GoldDescriptor() Descriptor {
	return Descriptor{
		Name:        "gold",
		Description: "Financial transaction data with settlement information",
		PartitionKey: PartitionKey{
			Kind:        "hierarchical",
			Paths:       []string{"pkType", "pkFilter"},
			Description: "Hierarchical partition key for efficient querying",
		},
		Fields: []Field{
			{
				Name:        "id",
				Type:        "string",
				Description: "Unique transaction identifier",
				Required:    true,
				Example:     "txn_2025_08_001",
			},
			{
				Name:        "pkType",
				Type:        "string",
				Description: "Partition key type indicating data category or table. For example, 'repay:settlement' for settlement data or 'merchant:information' for merchant demographic details.",
				Required:    true,
				ValidValues: []string{"repay:settlement", "merchant:information"},
				Example:     "repay:settlement",
			},
			{
				Name:        "pkFilter",
				Type:        "integer",
				Description: "Partition key filter - typically date in YYYYMMDD format. This represents the date of data ingestion.",
				Required:    true,
				Format:      "YYYYMMDD",
				Example:     "20250824",
				Note:        "Stored as a number; bind parameter values like 20250824, never \"20250824\"",
			},
			{
				Name:        "transactionDate",
				Type:        "integer",
				Description: "Date when transaction occurred - typically in YYYYMMDD format",
				Format:      "YYYYMMDD",
				Example:     "20250824",
			},
			{
				Name:        "transactionTime",
				Type:        "string",
				Description: "Time when transaction occurred - typically in HH:MM:SS format",
				Format:      "HH:MM:SS",
				Example:     "14:30:00",
			},
			{
				Name:        "transactionAmount",
				Type:        "Money",
				Description: "Transaction amount in USD",
				Range:       &Range{Min: 0, Max: 1000000},
				Example:     "1250.5",
			},
			{
				Name:        "currency",
				Type:        "string",
				Description: "Currency code",
				ValidValues: []string{"USD", "EUR", "GBP", "JPY"},
				Example:     "USD",
			},
			{
				Name:        "status",
				Type:        "string",
				Description: "Merchant enrollment status",
				ValidValues: []string{"OPEN", "CLOSED", "REOPENED", "DELETED"},
				Example:     "OPEN",
			},
			{
				Name:        "mid",
				Type:        "string",
				Description: "Merchant identifier or number",
				Example:     "498430293025",
			},
			{
				Name:        "merchantName",
				Type:        "string",
				Description: "Merchant name or DBA name",
				ValidValues: []string{"JOHNSON-STRICKLAND", "STRICKLAND, MILLER AND HOFFMAN"},
				Example:     "STRICKLAND, MILLER AND HOFFMAN",
			},
			{
				Name:        "customerId",
				Type:        "string",
				Description: "Customer identifier",
				Example:     "CUST_12345",
			},
			{
				Name:        "paymentMethod",
				Type:        "string",
				Description: "Payment method used",
				ValidValues: []string{"credit_card", "debit_card", "bank_transfer", "digital_wallet"},
				Example:     "credit_card",
			},
			{
				Name:        "category",
				Type:        "string",
				Description: "Transaction category or type",
				ValidValues: []string{"retail", "subscription", "invoice", "refund"},
				Example:     "retail",
			},
			{
				Name:        "volume",
				Type:        "integer",
				Description: "Transaction volume or quantity",
				Range:       &Range{Min: 1, Max: 10000},
				Example:     "5",
			},
		},
		QueryExamples: []QueryExample{
			{
				Description: "Get total merchants in the database",
				Queries: []string{
					"SELECT c.pkType, COUNT(1) AS total FROM c WHERE c.pkType = @pkType GROUP BY c.pkType",
					"SELECT VALUE COUNT(1) FROM c WHERE c.pkType = @pkType",
				},
			},
			{
				Description: "Find a merchant for a specific merchant id or number",
				Queries:     []string{"SELECT * FROM c WHERE c.pkType = @pkType AND c.mid = @mid"},
			},
			{
				Description: "Find a merchant for a specific merchant name",
				Queries:     []string{"SELECT * FROM c WHERE c.pkType = @pkType AND CONTAINS(c.merchantName, @name, true)"},
			},
			{
				Description: "Get all settlements for a specific date",
				Queries:     []string{"SELECT * FROM c WHERE c.pkType = @pkType AND c.pkFilter = @pkFilter"},
			},
			{
				Description: "Get total transaction amount by status",
				Queries:     []string{"SELECT c.status, SUM(c.transactionAmount) AS total FROM c WHERE c.pkType = @pkType GROUP BY c.status"},
			},
			{
				Description: "Count transactions by payment method",
				Queries:     []string{"SELECT c.paymentMethod, COUNT(1) AS count FROM c WHERE c.pkType = @pkType GROUP BY c.paymentMethod"},
			},
			{
				Description: "Get high-value transactions over 1000",
				Queries:     []string{"SELECT * FROM c WHERE c.pkType = @pkType AND c.transactionAmount > @minAmount ORDER BY c.transactionAmount DESC"},
			},
		},
		BusinessContext: BusinessContext{
			CommonQueries: []string{
				"Search merchant information",
				"Daily transaction volumes",
				"Transaction amounts by status",
				"Payment method distribution",
				"High-value transactions",
				"Failed transaction analysis",
			},
			TimePeriodsNote: "pkFilter uses YYYYMMDD format and is compared as a number",
			TimeExamples: []TimeExample{
				{Phrase: "today", Value: "Use current date in YYYYMMDD"},
				{Phrase: "August 2025", Value: "20250801 to 20250831"},
				{Phrase: "Aug 24, 2025", Value: "20250824"},
			},
		},
	}
}
