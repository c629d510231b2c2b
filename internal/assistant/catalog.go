package assistant

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var (
	// English is the fallback language.
	English = language.English
	// Somali is the second supported language.
	Somali = language.MustParse("so")

	supported = []language.Tag{English, Somali}
	matcher   = language.NewMatcher(supported)
)

// Match resolves an Accept-Language style value to a supported language.
func Match(raw string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	return supported[idx]
}

type variant string

const (
	variantNone variant = "none"
	variantOne  variant = "one"
	variantMany variant = "many"
)

func messageKey(intent Intent, v variant) string {
	return string(intent) + "." + string(v)
}

const (
	keyTopItem   = "top.item"
	keySeparator = "top.separator"
	keyFallback  = "fallback"
)

var messages = map[language.Tag]map[string]string{
	English: {
		"accounts.none":  "You have no accounts yet.",
		"accounts.one":   "Your account %s has a balance of %.2f.",
		"accounts.many":  "You have %d accounts with a total balance of %.2f. Largest: %s.",
		"inventory.none": "There are no products in your inventory.",
		"inventory.one":  "%s has %d units in stock at %.2f each.",
		"inventory.many": "You have %d products with %d units in stock. Most stocked: %s.",
		"sales.none":     "No sales have been recorded yet.",
		"sales.one":      "You have one sale to %s worth %.2f (%s).",
		"sales.many":     "You have %d sales totalling %.2f. Largest: %s.",
		"purchases.none": "No purchases have been recorded yet.",
		"purchases.one":  "You have one purchase from %s worth %.2f (%s).",
		"purchases.many": "You have %d purchases totalling %.2f. Largest: %s.",
		"customers.none": "You have no customers yet.",
		"customers.one":  "Your only customer is %s with a balance of %.2f.",
		"customers.many": "You have %d customers with a combined balance of %.2f. Top balances: %s.",
		"suppliers.none": "You have no suppliers yet.",
		"suppliers.one":  "Your only supplier is %s with a balance of %.2f.",
		"suppliers.many": "You have %d suppliers with a combined balance of %.2f. Top balances: %s.",
		keyTopItem:       "%s (%.2f)",
		keySeparator:     ", ",
		keyFallback:      "I can answer questions about accounts, inventory, sales, purchases, customers and suppliers.",
	},
	Somali: {
		"accounts.none":  "Weli ma lihid akoon.",
		"accounts.one":   "Akoonkaaga %s wuxuu haystaa %.2f.",
		"accounts.many":  "Waxaad leedahay %d akoon oo wadartooda haraagu yahay %.2f. Kuwa ugu badan: %s.",
		"inventory.none": "Bakhaarkaaga wax alaab ah kuma jiraan.",
		"inventory.one":  "%s waxaa kaydka ku jira %d xabbo, midkiiba %.2f.",
		"inventory.many": "Waxaad leedahay %d alaab oo %d xabbo kaydka ku jira. Kuwa ugu badan: %s.",
		"sales.none":     "Weli iib lama diiwaangelin.",
		"sales.one":      "Waxaad leedahay hal iib oo loo sameeyay %s, qiimihiisu waa %.2f (%s).",
		"sales.many":     "Waxaad leedahay %d iib oo wadartoodu tahay %.2f. Kuwa ugu waaweyn: %s.",
		"purchases.none": "Weli iibsi lama diiwaangelin.",
		"purchases.one":  "Waxaad leedahay hal iibsi oo laga sameeyay %s, qiimihiisu waa %.2f (%s).",
		"purchases.many": "Waxaad leedahay %d iibsi oo wadartoodu tahay %.2f. Kuwa ugu waaweyn: %s.",
		"customers.none": "Weli macmiil ma lihid.",
		"customers.one":  "Macmiilkaaga keliya waa %s, haraagiisuna waa %.2f.",
		"customers.many": "Waxaad leedahay %d macmiil oo wadar ahaan haraagoodu yahay %.2f. Haraaga ugu badan: %s.",
		"suppliers.none": "Weli ma lihid alaab-qeybiye.",
		"suppliers.one":  "Alaab-qeybiyahaaga keliya waa %s, haraagiisuna waa %.2f.",
		"suppliers.many": "Waxaad leedahay %d alaab-qeybiye oo wadar ahaan haraagoodu yahay %.2f. Haraaga ugu badan: %s.",
		keyTopItem:       "%s (%.2f)",
		keySeparator:     ", ",
		keyFallback:      "Waxaan ka jawaabi karaa su'aalaha ku saabsan akoonada, bakhaarka, iibka, iibsiga, macaamiisha iyo alaab-qeybiyeyaasha.",
	},
}

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(English))
	for tag, entries := range messages {
		for key, msg := range entries {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

var defaultCatalog = newCatalog()

func printerFor(lang language.Tag) *message.Printer {
	_, idx, conf := matcher.Match(lang)
	if conf == language.No {
		idx = 0
	}
	return message.NewPrinter(supported[idx], message.Catalog(defaultCatalog))
}
