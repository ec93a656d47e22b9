package models

// Location zones group coarse pickup areas so that new-donation fan-out
// can target recipients in the same part of town without precise
// coordinates. Slugs are stored on users and donations.
var LocationZones = map[string][]string{
	"Nairobi - CBD & Central": {"cbd", "upperhill", "ngara", "parklands", "westlands"},
	"Nairobi - West":          {"kileleshwa", "kilimani", "lavington", "hurlingham", "runda", "muthaiga", "gigiri", "spring_valley"},
	"Nairobi - South":         {"southb", "southc", "langata", "karen", "imara", "nyayo", "madaraka"},
	"Nairobi - East":          {"eastleigh", "buruburu", "donholm", "umoja", "embakasi", "pipeline", "kayole", "komarock"},
	"Nairobi - North":         {"roysambu", "kasarani", "kahawa_west", "kahawa_sukari", "zimmerman", "thika_rd", "ruaraka"},
	"Satellite Towns":         {"ruaka", "kitisuru", "membley", "thindigua", "juja", "syokimau", "ongata_rongai", "kitengela", "ngong", "kiserian"},
	"Major Cities":            {"mombasa", "kisumu", "eldoret", "nakuru", "thika", "nyeri", "machakos", "embu", "meru", "kisii", "kericho", "naivasha"},
	"Other":                   {"other"},
}

var locationSlugs = buildLocationSlugs()

func buildLocationSlugs() map[string]bool {
	slugs := make(map[string]bool)
	for _, zone := range LocationZones {
		for _, slug := range zone {
			slugs[slug] = true
		}
	}
	return slugs
}

// IsValidLocation reports whether slug is a known location.
func IsValidLocation(slug string) bool {
	return locationSlugs[slug]
}
