package producer

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/finqa/finqa/internal/preprocess"
)

type spendProfile struct {
	category    string
	merchants   []string
	description string
	weight      int
	min, max    float64
	// income rows are credits; everything else is a debit.
	income bool
}

var profiles = []spendProfile{
	{category: "Food", merchants: []string{"Starbucks", "Migros", "Coop", "McDonald's"}, description: "Card payment", weight: 30, min: 3, max: 90},
	{category: "Transport", merchants: []string{"SBB", "Uber", "Shell"}, description: "Card payment", weight: 15, min: 4, max: 120},
	{category: "Shopping", merchants: []string{"Amazon", "Zalando", "IKEA"}, description: "Online purchase", weight: 15, min: 10, max: 400},
	{category: "Utilities", merchants: []string{"Swisscom", "EWZ"}, description: "Direct debit", weight: 8, min: 40, max: 180},
	{category: "Rent", merchants: []string{"Immo AG"}, description: "Standing order", weight: 5, min: 1400, max: 2200},
	{category: "Loans", merchants: []string{""}, description: "Loan installment", weight: 5, min: 250, max: 1250},
	{category: "Entertainment", merchants: []string{"Netflix", "Spotify", "Kino Abaton"}, description: "Subscription", weight: 10, min: 8, max: 60},
	{category: "Income", merchants: []string{"", "Acme Corp"}, description: "Salary", weight: 4, min: 4500, max: 7500, income: true},
	{category: "", merchants: []string{""}, description: "", weight: 2, min: 1, max: 50},
}

// Generator produces raw export rows in the bank's positional format: day-first dates,
// thousands separators on large amounts, blanks where the source has no value.
type Generator struct {
	rnd      *rand.Rand
	clients  int
	start    time.Time
	days     int
	sequence int64
	total    int
}

func NewGenerator(seed int64, clients int, start, end time.Time) *Generator {
	days := int(end.Sub(start).Hours() / 24)
	if days < 0 {
		days = 0
	}
	total := 0
	for _, p := range profiles {
		total += p.weight
	}
	return &Generator{
		rnd:     rand.New(rand.NewSource(seed)),
		clients: clients,
		start:   start,
		days:    days,
		total:   total,
	}
}

func (g *Generator) NextRow() preprocess.RawRow {
	g.sequence++
	profile := g.pickProfile()
	client := g.rnd.Intn(g.clients) + 1
	date := g.start.AddDate(0, 0, g.rnd.Intn(g.days+1))

	amount := round2(profile.min + g.rnd.Float64()*(profile.max-profile.min))
	if !profile.income {
		amount = -amount
	}
	merchant := profile.merchants[g.rnd.Intn(len(profile.merchants))]
	description := profile.description
	if description != "" && merchant != "" {
		description += " " + merchant
	}

	return preprocess.RawRow{
		ClientID:               strconv.Itoa(client),
		BankID:                 strconv.Itoa(client%3 + 1),
		AccountID:              strconv.Itoa(client*10 + g.rnd.Intn(2)),
		TransactionID:          strconv.FormatInt(100000+g.sequence, 10),
		TransactionDate:        date.Format("02/01/2006"),
		TransactionDescription: description,
		Amount:                 formatAmount(amount),
		Category:               profile.category,
		Merchant:               merchant,
	}
}

func (g *Generator) pickProfile() spendProfile {
	p := g.rnd.Intn(g.total)
	for _, profile := range profiles {
		if p < profile.weight {
			return profile
		}
		p -= profile.weight
	}
	return profiles[len(profiles)-1]
}

// formatAmount renders 1250.5 as "1,250.50".
func formatAmount(value float64) string {
	text := strconv.FormatFloat(math.Abs(value), 'f', 2, 64)
	whole, frac, _ := strings.Cut(text, ".")
	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	sign := ""
	if value < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%s", sign, b.String(), frac)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
