package stages

import (
	"fmt"
	"strings"

	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// PlaceholderImageCount is how many reference images the collector
// substitutes when search yields nothing.
const PlaceholderImageCount = 2

const defaultImageURL = "https://images.unsplash.com/photo-1506905925346-21bda4d32df4?w=800&q=80"

type category struct {
	name       string
	markers    []string
	references []workflow.ImageResource
	synthetic  string
	label      string
}

var categories = []category{
	{
		name:    "architecture",
		markers: []string{"xi'an", "xian", "pagoda", "ancient architecture", "西安", "古建筑", "大雁塔"},
		references: []workflow.ImageResource{
			{URL: "https://images.unsplash.com/photo-1578662996442-48f60103fc96?w=800&q=80", Description: "Giant Wild Goose Pagoda"},
			{URL: "https://images.unsplash.com/photo-1547036967-23d11aacaee0?w=800&q=80", Description: "Xi'an city wall"},
		},
		synthetic: "https://images.unsplash.com/photo-1578662996442-48f60103fc96?w=800&q=80",
		label:     "ancient architecture style design",
	},
	{
		name:    "tea",
		markers: []string{"teacup", "teapot", "tea", "茶具", "茶", "紫砂"},
		references: []workflow.ImageResource{
			{URL: "https://images.unsplash.com/photo-1544787219-7f47ccb76574?w=800&q=80", Description: "Fine tea ware"},
			{URL: "https://images.unsplash.com/photo-1571934811356-5cc061b6821f?w=800&q=80", Description: "Tea set"},
		},
		synthetic: "https://images.unsplash.com/photo-1544787219-7f47ccb76574?w=800&q=80",
		label:     "tea ware design",
	},
	{
		name:    "city",
		markers: []string{"chengdu", "hotpot", "hot pot", "成都", "火锅"},
		references: []workflow.ImageResource{
			{URL: "https://images.unsplash.com/photo-1569718212165-3a8278d5f624?w=800&q=80", Description: "Chengdu hotpot"},
			{URL: defaultImageURL, Description: "Chengdu culture"},
		},
		synthetic: "https://images.unsplash.com/photo-1569718212165-3a8278d5f624?w=800&q=80",
		label:     "city culture design",
	},
	{
		name:    "craft",
		markers: []string{"cultural", "craft", "handicraft", "文创", "工艺品"},
		references: []workflow.ImageResource{
			{URL: "https://images.unsplash.com/photo-1518709268805-4e9042af2176?w=800&q=80", Description: "Cultural product"},
			{URL: "https://images.unsplash.com/photo-1578749556568-bc2c40e68b61?w=800&q=80", Description: "Traditional craft"},
		},
		synthetic: "https://images.unsplash.com/photo-1518709268805-4e9042af2176?w=800&q=80",
		label:     "cultural product design",
	},
}

func matchCategory(text string) (category, bool) {
	lower := strings.ToLower(text)
	for _, c := range categories {
		for _, m := range c.markers {
			if strings.Contains(lower, m) {
				return c, true
			}
		}
	}
	return category{}, false
}

// PlaceholderReferences returns up to count stand-in reference images
// matched to keyword.
func PlaceholderReferences(keyword string, count int) []workflow.ImageResource {
	var out []workflow.ImageResource
	if c, ok := matchCategory(keyword); ok {
		for _, img := range c.references {
			img.Category = c.name
			img.Description = img.Description + " - " + keyword
			out = append(out, img)
		}
	} else {
		label := strings.TrimSpace(keyword)
		if label == "" {
			label = "creative brief"
		}
		out = []workflow.ImageResource{
			{URL: "https://images.unsplash.com/photo-1518709268805-4e9042af2176?w=800&q=80", Description: label + " - reference 1", Category: "default"},
			{URL: defaultImageURL, Description: label + " - reference 2", Category: "default"},
		}
	}
	if count >= 0 && len(out) > count {
		out = out[:count]
	}
	return out
}

// PlaceholderImage stands in for a synthesized image. The description says
// so explicitly.
func PlaceholderImage(prompt string) workflow.ImageResource {
	if strings.TrimSpace(prompt) == "" {
		return workflow.ImageResource{URL: defaultImageURL, Description: "placeholder image - default design", Category: "default"}
	}
	if c, ok := matchCategory(prompt); ok {
		return workflow.ImageResource{URL: c.synthetic, Description: "placeholder image - " + c.label, Category: c.name}
	}
	return workflow.ImageResource{URL: defaultImageURL, Description: "placeholder image - creative design", Category: "default"}
}

type productProfile struct {
	markers   []string
	product   string
	materials []string
	steps     []string
}

var productProfiles = []productProfile{
	{
		markers:   []string{"teacup", "teapot", "tea", "茶具", "茶"},
		product:   "tea set",
		materials: []string{"high-fire porcelain clay", "food-safe glaze", "underglaze pigments"},
		steps:     []string{"throw or slip-cast the body", "trim and dry to leather hard", "bisque fire at 900°C", "apply underglaze decoration and glaze", "glaze fire at 1280°C", "inspect for leaks and food safety"},
	},
	{
		markers:   []string{"ornament", "figurine", "statue", "摆件"},
		product:   "ornament",
		materials: []string{"resin or ceramic body", "acrylic paint", "protective lacquer"},
		steps:     []string{"sculpt the master model", "make a silicone mould", "cast and demould", "sand and prime", "hand paint details", "seal with lacquer"},
	},
	{
		markers:   []string{"stationery", "notebook", "bookmark", "pen", "文具"},
		product:   "stationery",
		materials: []string{"coated art paper", "metal or bamboo components", "eco-friendly inks"},
		steps:     []string{"finalize print artwork", "offset or digital printing", "die cut and emboss", "assemble components", "quality check and pack"},
	},
}

var defaultProfile = productProfile{
	product:   "cultural product",
	materials: []string{"material chosen to suit the design", "surface finish", "packaging"},
	steps:     []string{"refine the design into production drawings", "prototype and review", "tooling and small batch trial", "mass production", "quality inspection and packaging"},
}

// PlaceholderProcess is a templated, generic production-process write-up
// for the product type implied by prompt.
func PlaceholderProcess(prompt string) string {
	profile := defaultProfile
	lower := strings.ToLower(prompt)
	for _, p := range productProfiles {
		matched := false
		for _, m := range p.markers {
			if strings.Contains(lower, m) {
				matched = true
				break
			}
		}
		if matched {
			profile = p
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Production process: %s\n\n", profile.product)
	fmt.Fprintf(&b, "Design brief: %s\n\n", strings.TrimSpace(prompt))
	b.WriteString("## Materials\n")
	for _, m := range profile.materials {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	b.WriteString("\n## Process steps\n")
	for i, s := range profile.steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\n## Notes\nThis is a generic template generated without image analysis; review with a manufacturer before production.\n")
	return b.String()
}

const placeholderModelBase = "https://mock-3d-storage.example.com"

// PlaceholderModel returns deterministic model and preview URLs for a job.
func PlaceholderModel(jobID string) (modelURL, previewURL string) {
	id := strings.TrimSpace(jobID)
	if id == "" {
		id = "unknown"
	}
	return placeholderModelBase + "/models/mock_model_" + id + ".stl",
		placeholderModelBase + "/previews/mock_preview_" + id + ".png"
}
