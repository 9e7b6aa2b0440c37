package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mickamy/ormrel/config"
	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "ormrel.yaml", "schema file")
	modelName := flag.String("model", "", "model to explain (all models if omitted)")
	dialectName := flag.String("dialect", "mysql", "SQL dialect (mysql, postgres or sqlite)")
	key := flag.String("key", "1", "key value used to plan the relation queries")
	only := flag.String("relations", "", "comma separated relations to explain (all if omitted)")
	asJSON := flag.Bool("json", false, "print plans as JSON")
	verbose := flag.Bool("v", false, "verbose logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ormrel", version)
		return
	}

	log := newLogger(*verbose)

	d, err := orm.ParseDialect(*dialectName)
	if err != nil {
		log.Fatal(err)
	}
	schema, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	reg, err := schema.NewRegistry(orm.New(nil, d), relation.WithLogger(log))
	if err != nil {
		log.Fatal(err)
	}

	models := reg.Models()
	if *modelName != "" {
		models = []string{*modelName}
	}
	log.WithField("models", len(models)).Debugf("loaded %s", *configPath)

	out := make(map[string][]relation.Plan, len(models))
	for _, name := range models {
		e, err := reg.Entity(name)
		if err != nil {
			log.Fatal(err)
		}
		if *only != "" {
			e.SetRelation([]string{*only}, true)
		}
		plans, err := e.Explain(*key)
		if err != nil {
			log.WithField("model", name).Fatal(err)
		}
		out[name] = plans
	}

	if *asJSON {
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(b))
		return
	}
	printPlans(os.Stdout, models, out)
}

func newLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = new(prefixed.TextFormatter)
	l.Level = logrus.InfoLevel
	if verbose {
		l.Level = logrus.DebugLevel
	}
	return l
}

func printPlans(w io.Writer, models []string, plans map[string][]relation.Plan) {
	for _, name := range models {
		fmt.Fprintf(w, "%s\n", name)
		if len(plans[name]) == 0 {
			fmt.Fprintln(w, "  (no relations)")
		}
		for _, p := range plans[name] {
			fmt.Fprintf(w, "  %s: %s -> %s (%s = %s)\n", p.Name, p.Type, p.Target, p.Key, p.ForeignKey)
			if p.JoinTable != "" {
				fmt.Fprintf(w, "    via %s.%s\n", p.JoinTable, p.JoinForeignKey)
			}
			fmt.Fprintf(w, "    %s\n", p.SQL)
			if len(p.Args) > 0 {
				args := make([]string, len(p.Args))
				for i, a := range p.Args {
					args[i] = fmt.Sprint(a)
				}
				fmt.Fprintf(w, "    args: [%s]\n", strings.Join(args, ", "))
			}
		}
	}
}
