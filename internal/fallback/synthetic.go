package fallback

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/scrape/util"

	"github.com/google/uuid"
)

const SyntheticSource domain.SourceID = "synthetic"

var (
	syntheticCompanies = []string{
		"Tech Solutions SA", "Digital Innovations", "Cloud Systems", "Data Analytics Corp",
		"Software House", "IT Consultants", "Web Developers Inc", "Mobile Apps Co",
		"Cyber Security Ltd", "AI Research Lab", "FinTech Solutions", "E-Commerce Hub",
		"Startup Accelerator", "Innovation Labs", "Digital Agency SA", "Tech Startup",
		"Global Tech Corp", "Software Factory", "Code Masters", "Dev House SA",
		"Tech Giants Africa", "Digital Transformation Co", "Cloud Experts", "Data Science Hub",
		"Blockchain Solutions", "IoT Innovations", "Machine Learning Co", "Robotics Lab",
	}
	syntheticJobTypes = []string{"Full-time", "Contract", "Remote", "Hybrid", "Part-time", "Freelance"}
	syntheticSalaries = []string{
		"R25,000 - R35,000", "R35,000 - R50,000", "R50,000 - R70,000",
		"R70,000 - R90,000", "R90,000 - R120,000", "R120,000 - R180,000",
		"R180,000 - R250,000", "Market Related", "Competitive Package",
	}
	syntheticLevels     = []string{"Junior", "Mid-level", "Senior", "Lead", "Principal", "Staff"}
	syntheticVariations = []string{"", " Specialist", " Developer", " Engineer", " Consultant", " Architect", " Manager", " Analyst"}

	// Namespace for synthetic reference ids.
	syntheticNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("jobagg:synthetic"))
)

// Synthetic generates placeholder postings from the query alone. The same
// request always yields the same postings, and it never fails.
type Synthetic struct {
	count int
}

func NewSynthetic(count int) *Synthetic {
	if count <= 0 {
		count = 30
	}
	return &Synthetic{count: count}
}

func (s *Synthetic) Name() string    { return "synthetic" }
func (s *Synthetic) Synthetic() bool { return true }

func (s *Synthetic) Resolve(_ context.Context, req domain.SearchRequest) ([]domain.Posting, error) {
	return Generate(req, s.count), nil
}

// Generate is deterministic in the request fingerprint. Title and company
// pairs are drawn without repetition so no two postings dedupe together.
func Generate(req domain.SearchRequest, n int) []domain.Posting {
	fp := req.Fingerprint()
	rng := rand.New(rand.NewSource(int64(util.Hash32(string(fp)))))

	query := req.Query
	location := req.Location
	if location == "" {
		location = "South Africa"
	}

	combos := len(syntheticLevels) * len(syntheticVariations) * len(syntheticCompanies)
	if n > combos {
		n = combos
	}
	picks := rng.Perm(combos)[:n]

	out := make([]domain.Posting, 0, n)
	for i, k := range picks {
		level := syntheticLevels[k%len(syntheticLevels)]
		k /= len(syntheticLevels)
		variation := query + syntheticVariations[k%len(syntheticVariations)]
		k /= len(syntheticVariations)
		company := syntheticCompanies[k]

		jobType := syntheticJobTypes[rng.Intn(len(syntheticJobTypes))]
		salary := syntheticSalaries[rng.Intn(len(syntheticSalaries))]
		daysAgo := rng.Intn(30) + 1
		plural := "s"
		if daysAgo == 1 {
			plural = ""
		}

		title := level + " " + variation
		p := domain.Posting{
			Title:      title,
			Company:    company,
			Location:   location,
			SalaryText: salary,
			PostedAt:   fmt.Sprintf("%d day%s ago", daysAgo, plural),
			Description: fmt.Sprintf(
				"We are looking for a talented %s to join our %s team in %s. This %s position offers %s and the opportunity to work with cutting-edge technologies.",
				title, company, location, strings.ToLower(jobType), salary),
			SourceID:  SyntheticSource,
			JobType:   jobType,
			Industry:  "Technology",
			Reference: uuid.NewSHA1(syntheticNS, []byte(fmt.Sprintf("%s#%d", fp, i))).String(),
		}
		out = append(out, p.Normalize())
	}
	return out
}
