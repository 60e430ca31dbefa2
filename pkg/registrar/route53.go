package registrar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asoos/domain-sync/pkg/model"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/sirupsen/logrus"
)

const route53WriteTimeout = 30 * time.Second

type route53Client struct {
	svc *route53.Route53
	// root domain -> hosted zone ID, resolved once at startup
	zones map[string]string
}

// NewRoute53 builds a registrar client backed by Route53 hosted zones.
// Every root domain in the registry must have a matching zone;
// anything missing is a configuration error, not a per-domain one.
func NewRoute53(roots []string) (Client, error) {
	s, err := session.NewSession()
	if err != nil {
		return nil, err
	}

	svc := route53.New(s, &aws.Config{
		MaxRetries: aws.Int(3),
	})

	zones := make(map[string]string, len(roots))
	for _, root := range roots {
		out, err := svc.ListHostedZonesByName(&route53.ListHostedZonesByNameInput{
			DNSName:  aws.String(root + "."),
			MaxItems: aws.String("1"),
		})
		if err != nil {
			return nil, err
		}
		if len(out.HostedZones) == 0 || aws.StringValue(out.HostedZones[0].Name) != root+"." {
			return nil, fmt.Errorf("no hosted zone found for root domain %v", root)
		}
		zones[root] = aws.StringValue(out.HostedZones[0].Id)
		logrus.Debugf("resolved hosted zone %v for root domain %v", zones[root], root)
	}

	return &route53Client{
		svc:   svc,
		zones: zones,
	}, nil
}

func (c *route53Client) Records(ctx context.Context, root, name, rType string) ([]model.Record, error) {
	zoneID, err := c.zone(root)
	if err != nil {
		return nil, err
	}
	fqdn := recordFQDN(root, name)

	out, err := c.svc.ListResourceRecordSetsWithContext(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(fqdn),
		StartRecordType: aws.String(rType),
		MaxItems:        aws.String("1"),
	})
	if err != nil {
		return nil, err
	}

	var records []model.Record
	for _, rrs := range out.ResourceRecordSets {
		if strings.TrimSuffix(aws.StringValue(rrs.Name), ".") != fqdn ||
			aws.StringValue(rrs.Type) != rType {
			continue
		}
		for _, rr := range rrs.ResourceRecords {
			records = append(records, model.Record{
				Name: name,
				Type: rType,
				Data: strings.Trim(aws.StringValue(rr.Value), "\""),
				TTL:  int(aws.Int64Value(rrs.TTL)),
			})
		}
	}

	return records, nil
}

func (c *route53Client) SetRecords(ctx context.Context, root, name, rType string, records []model.Record) error {
	zoneID, err := c.zone(root)
	if err != nil {
		return err
	}
	fqdn := recordFQDN(root, name)

	if len(records) == 0 {
		return c.deleteRecordSet(ctx, zoneID, root, name, rType)
	}

	rr := make([]*route53.ResourceRecord, 0, len(records))
	ttl := int64(600)
	for _, record := range records {
		rr = append(rr, &route53.ResourceRecord{
			Value: aws.String(cleanRecordValue(rType, record.Data)),
		})
		if record.TTL > 0 {
			ttl = int64(record.TTL)
		}
	}

	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: []*route53.Change{
				{
					Action: aws.String("UPSERT"),
					ResourceRecordSet: &route53.ResourceRecordSet{
						Name:            aws.String(fqdn),
						Type:            aws.String(rType),
						TTL:             aws.Int64(ttl),
						ResourceRecords: rr,
					},
				},
			},
		},
	}

	return c.change(ctx, input, fqdn, "upsert")
}

// change applies one change batch. A write, once issued, runs on its own
// deadline even if the surrounding run is cancelled, so the zone is
// never left half-applied.
func (c *route53Client) change(ctx context.Context, input *route53.ChangeResourceRecordSetsInput, fqdn, action string) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), route53WriteTimeout)
	defer cancel()

	if _, err := c.svc.ChangeResourceRecordSetsWithContext(wctx, input); err != nil {
		return fmt.Errorf("failed to %s route53 records for %v with error %v", action, fqdn, err)
	}

	return nil
}

// deleteRecordSet removes the full (fqdn, type) set. Route53 requires
// the existing set in the DELETE change, so read it back first.
func (c *route53Client) deleteRecordSet(ctx context.Context, zoneID, root, name, rType string) error {
	existing, err := c.Records(ctx, root, name, rType)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	fqdn := recordFQDN(root, name)

	rr := make([]*route53.ResourceRecord, 0, len(existing))
	ttl := int64(600)
	for _, record := range existing {
		rr = append(rr, &route53.ResourceRecord{
			Value: aws.String(cleanRecordValue(rType, record.Data)),
		})
		if record.TTL > 0 {
			ttl = int64(record.TTL)
		}
	}

	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: []*route53.Change{
				{
					Action: aws.String("DELETE"),
					ResourceRecordSet: &route53.ResourceRecordSet{
						Name:            aws.String(fqdn),
						Type:            aws.String(rType),
						TTL:             aws.Int64(ttl),
						ResourceRecords: rr,
					},
				},
			},
		},
	}

	return c.change(ctx, input, fqdn, "delete")
}

func (c *route53Client) zone(root string) (string, error) {
	zoneID, ok := c.zones[root]
	if !ok {
		return "", fmt.Errorf("no hosted zone known for root domain %v", root)
	}
	return zoneID, nil
}

func recordFQDN(root, name string) string {
	if name == "" || name == "@" {
		return root
	}
	return name + "." + root
}

func cleanRecordValue(rType string, value string) string {
	if rType == model.RecordTypeTxt && !strings.HasPrefix(value, "\"") {
		return "\"" + value + "\""
	}

	return value
}
